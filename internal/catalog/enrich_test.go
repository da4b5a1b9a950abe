package catalog

import (
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
	"pgregory.net/rapid"

	"github.com/onesmallpr/questboard/internal/models"
)

func TestDeriveRank(t *testing.T) {
	tests := []struct {
		name       string
		complexity string
		labels     []string
		want       models.Rank
	}{
		{"help wanted", "", []string{"help wanted"}, models.RankD},
		{"bug and urgent", "", []string{"bug", "urgent"}, models.RankC},
		{"no labels", "", []string{}, models.RankB},
		{"low complexity wins over labels", models.ComplexityLow, []string{"bug", "hard"}, models.RankE},
		{"medium complexity defers to labels", models.ComplexityMedium, []string{"help wanted"}, models.RankD},
		{"medium label", "", []string{"difficulty: medium"}, models.RankD},
		{"case insensitive", "", []string{"Type: Bug"}, models.RankC},
		{"medium beats bug", "", []string{"bug", "Help Wanted"}, models.RankD},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveRank(tt.complexity, tt.labels); got != tt.want {
				t.Errorf("DeriveRank(%q, %v) = %s, want %s", tt.complexity, tt.labels, got, tt.want)
			}
		})
	}
}

func TestDeriveRankProperty(t *testing.T) {
	label := rapid.SampledFrom([]string{
		"bug", "help wanted", "good first issue", "documentation", "hard", "medium", "enhancement", "urgent",
	})

	rapid.Check(t, func(rt *rapid.T) {
		complexity := rapid.SampledFrom([]string{"", models.ComplexityLow, models.ComplexityMedium}).Draw(rt, "complexity")
		labels := rapid.SliceOf(label).Draw(rt, "labels")

		got := DeriveRank(complexity, labels)
		if !got.IsValid() {
			rt.Fatalf("invalid rank %q", got)
		}
		if complexity == models.ComplexityLow && got != models.RankE {
			rt.Fatalf("low complexity must rank E, got %s", got)
		}
		if complexity != models.ComplexityLow && got == models.RankE {
			rt.Fatalf("only low complexity may rank E, got E for %v", labels)
		}
	})
}

func TestDetermineElement(t *testing.T) {
	tests := []struct {
		labels []string
		repo   string
		want   string
	}{
		{[]string{"good first issue"}, "acme/widgets", UnknownElement},
		{[]string{"lang: python"}, "acme/widgets", "Python"},
		{[]string{"good first issue"}, "golang/go", "Go"},
		{[]string{"typescript", "javascript"}, "acme/web", "Javascript"},
		{[]string{"documentation"}, "rust-lang/rust", "Rust"},
		{nil, "acme/java-tools", "Java"},
		{[]string{"JSON"}, "", "Json"},
	}

	for _, tt := range tests {
		if got := DetermineElement(tt.labels, tt.repo); got != tt.want {
			t.Errorf("DetermineElement(%v, %q) = %q, want %q", tt.labels, tt.repo, got, tt.want)
		}
	}
}

func TestDedupeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ids := rapid.SliceOf(rapid.Int64Range(1, 8)).Draw(rt, "ids")

		issues := make([]models.RawIssue, len(ids))
		for i, id := range ids {
			issues[i] = models.RawIssue{ID: id, Title: strings.Repeat("v", i+1)}
		}

		out := Dedupe(issues)

		seen := map[int64]bool{}
		var firstOrder []int64
		last := map[int64]string{}
		for _, is := range issues {
			if !seen[is.ID] {
				seen[is.ID] = true
				firstOrder = append(firstOrder, is.ID)
			}
			last[is.ID] = is.Title
		}

		if len(out) != len(firstOrder) {
			rt.Fatalf("got %d entries, want %d", len(out), len(firstOrder))
		}
		for i, is := range out {
			if is.ID != firstOrder[i] {
				rt.Fatalf("position %d: id %d, want %d", i, is.ID, firstOrder[i])
			}
			if is.Title != last[is.ID] {
				rt.Fatalf("id %d: title %q, want last-seen %q", is.ID, is.Title, last[is.ID])
			}
		}
	})
}

func TestBuildQuest(t *testing.T) {
	convey.Convey("Given a raw issue", t, func() {
		raw := models.RawIssue{
			ID:            42,
			Title:         "Fix typo in README",
			Body:          strings.Repeat("x", 20),
			HTMLURL:       "https://github.com/facebook/react/issues/123",
			RepositoryURL: "https://api.github.com/repos/facebook/react",
			Labels:        []models.RawLabel{{Name: "good first issue"}, {Name: "documentation"}},
		}

		convey.Convey("When analysis said it is easy", func() {
			easy := true
			enr := EnrichmentFromAnalysis(&models.Analysis{IsEasy: &easy, Reasoning: "docs only", EstimatedTime: "15 mins"}, &raw)
			q := BuildQuest(&raw, enr, 10)

			convey.Convey("Then the quest carries provenance fields", func() {
				convey.So(q.ID, convey.ShouldEqual, "42")
				convey.So(q.Repo, convey.ShouldEqual, "facebook/react")
				convey.So(q.URL, convey.ShouldEqual, raw.HTMLURL)
				convey.So(q.Labels, convey.ShouldResemble, []string{"good first issue", "documentation"})
			})

			convey.Convey("And it is ranked E with E rewards", func() {
				convey.So(q.Rank, convey.ShouldEqual, models.RankE)
				convey.So(q.Rewards, convey.ShouldResemble, models.Rewards{XP: 100, Contribution: 50})
				convey.So(q.Analysis.Complexity, convey.ShouldEqual, models.ComplexityLow)
				convey.So(q.Analysis.TechnicalRequirements, convey.ShouldEqual, "docs only")
			})

			convey.Convey("And the description is truncated", func() {
				convey.So(q.Description, convey.ShouldEqual, strings.Repeat("x", 10)+"...")
			})
		})

		convey.Convey("When analysis failed", func() {
			q := BuildQuest(&raw, FallbackEnrichment(&raw), 500)

			convey.Convey("Then the fallback is marked in prose only", func() {
				convey.So(IsFallback(q.Analysis), convey.ShouldBeTrue)
				convey.So(q.Analysis.EstimatedTime, convey.ShouldEqual, UnknownEstimate)
				convey.So(q.Analysis.Complexity, convey.ShouldBeEmpty)
			})

			convey.Convey("And the rank comes from labels", func() {
				convey.So(q.Rank, convey.ShouldEqual, models.RankB)
				convey.So(q.Rewards, convey.ShouldResemble, models.Rewards{XP: 500, Contribution: 100})
			})
		})

		convey.Convey("When the body is empty", func() {
			raw.Body = "   "
			q := BuildQuest(&raw, FallbackEnrichment(&raw), 500)
			convey.So(q.Description, convey.ShouldEqual, NoDescription)
		})
	})
}

func TestRewardsFor(t *testing.T) {
	want := map[models.Rank]models.Rewards{
		models.RankE: {XP: 100, Contribution: 50},
		models.RankD: {XP: 200, Contribution: 100},
		models.RankC: {XP: 500, Contribution: 100},
		models.RankB: {XP: 500, Contribution: 100},
	}
	for rank, w := range want {
		if got := RewardsFor(rank); got != w {
			t.Errorf("RewardsFor(%s) = %+v, want %+v", rank, got, w)
		}
	}
}

func TestFilter(t *testing.T) {
	quests := []models.Quest{
		{ID: "1", Rank: models.RankE, Element: "Python", Labels: []string{"documentation"}},
		{ID: "2", Rank: models.RankC, Element: "Go", Labels: []string{"bug"}},
		{ID: "3", Rank: models.RankE, Element: "Go", Labels: []string{"Bug", "docs"}},
	}

	tests := []struct {
		name string
		f    models.QuestFilters
		want []string
	}{
		{"no filter", models.QuestFilters{}, []string{"1", "2", "3"}},
		{"rank", models.QuestFilters{Rank: "e"}, []string{"1", "3"}},
		{"element", models.QuestFilters{Element: "go"}, []string{"2", "3"}},
		{"label", models.QuestFilters{Label: "bug"}, []string{"2", "3"}},
		{"combined", models.QuestFilters{Rank: models.RankE, Label: "bug"}, []string{"3"}},
		{"no match", models.QuestFilters{Element: "Rust"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, q := range Filter(quests, tt.f) {
				got = append(got, q.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Filter(%+v) = %v, want %v", tt.f, got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	if got := Describe("héllo wörld", 5); got != "héllo..." {
		t.Errorf("rune truncation: got %q", got)
	}
	if got := Describe("short", 0); got != "short" {
		t.Errorf("limit 0 should disable truncation, got %q", got)
	}
	if got := Describe("", 10); got != NoDescription {
		t.Errorf("empty body: got %q", got)
	}
}
