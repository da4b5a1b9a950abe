package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const searchFixture = `{
  "total_count": 2,
  "items": [
    {
      "id": 101,
      "title": "Fix typo in README",
      "body": "There is a typo.",
      "html_url": "https://github.com/acme/widgets/issues/1",
      "repository_url": "https://api.github.com/repos/acme/widgets",
      "labels": [{"name": "good first issue"}, {"name": "documentation"}]
    },
    {
      "id": 102,
      "title": "Crash on start",
      "body": null,
      "html_url": "https://github.com/acme/gears/issues/9",
      "repository_url": "https://api.github.com/repos/acme/gears",
      "labels": [{"name": "bug"}]
    }
  ]
}`

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/issues" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != `label:"good first issue" state:open no:assignee` {
			t.Errorf("unexpected query %q", q.Get("q"))
		}
		if q.Get("sort") != "updated" || q.Get("order") != "desc" || q.Get("per_page") != "5" {
			t.Errorf("unexpected paging params %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "token secret" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, SearchOptions{Query: `label:"good first issue" state:open no:assignee`}, WithToken("secret"))

	issues, err := client.Search(context.Background())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}

	first := issues[0]
	if first.QuestID() != "101" {
		t.Errorf("unexpected id %q", first.QuestID())
	}
	if first.RepoName() != "acme/widgets" {
		t.Errorf("unexpected repo %q", first.RepoName())
	}
	labels := first.LabelNames()
	if len(labels) != 2 || labels[0] != "good first issue" || labels[1] != "documentation" {
		t.Errorf("labels should keep upstream order, got %v", labels)
	}
	if issues[1].Body != "" {
		t.Errorf("null body should decode as empty, got %q", issues[1].Body)
	}
}

func TestSearch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, SearchOptions{}).Search(context.Background()); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>rate limited</html>`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, SearchOptions{}).Search(context.Background()); err == nil {
		t.Fatal("expected error for non-JSON body")
	}
}

func TestSearch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := NewClient(srv.URL, SearchOptions{}).Search(ctx); err == nil {
		t.Fatal("expected timeout error")
	}
}
