// Package seed provides a file-backed issue source for offline and demo use.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/onesmallpr/questboard/internal/models"
)

// Source loads raw issues from YAML board files in a directory.
// The directory is re-read on every Search so edits show up on the next refresh.
type Source struct {
	dir string
}

// NewSource creates a new file source
func NewSource(dir string) *Source {
	return &Source{dir: dir}
}

// Search returns all issues from *.yaml / *.yml files, ordered by file name
// and then by position within each file
func (s *Source) Search(ctx context.Context) ([]models.RawIssue, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var issues []models.RawIssue
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loaded, err := LoadFile(file)
		if err != nil {
			slog.Warn("failed to load seed file", "file", file, "error", err)
			continue
		}
		issues = append(issues, loaded...)
	}

	slog.Debug("seed issues loaded", "dir", s.dir, "files", len(files), "issues", len(issues))
	return issues, nil
}

// Type returns the dependency name used in readiness reports
func (s *Source) Type() string {
	return "seed"
}

// HealthCheck verifies the seed directory is readable
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := os.ReadDir(s.dir)
	return err
}

func (s *Source) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, filepath.Join(s.dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// LoadFile parses a single board file
func LoadFile(path string) ([]models.RawIssue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var bf boardFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	issues := make([]models.RawIssue, 0, len(bf.Issues))
	for i, f := range bf.Issues {
		if f.ID == 0 {
			return nil, fmt.Errorf("issue %d: id is required", i)
		}
		if f.Title == "" {
			return nil, fmt.Errorf("issue %d: title is required", i)
		}

		repo := f.Repo
		if repo == "" {
			repo = bf.Repo
		}
		if repo == "" {
			return nil, fmt.Errorf("issue %d: repo is required", i)
		}

		url := f.URL
		if url == "" {
			url = fmt.Sprintf("https://github.com/%s/issues/%d", repo, f.ID)
		}

		labels := make([]models.RawLabel, 0, len(f.Labels))
		for _, name := range f.Labels {
			labels = append(labels, models.RawLabel{Name: name})
		}

		issues = append(issues, models.RawIssue{
			ID:            f.ID,
			Title:         f.Title,
			Body:          f.Body,
			HTMLURL:       url,
			RepositoryURL: "https://api.github.com/repos/" + repo,
			Labels:        labels,
		})
	}

	return issues, nil
}

// --- YAML file structs ---

// boardFile represents the YAML structure of a seed board
type boardFile struct {
	Repo   string      `yaml:"repo"`
	Issues []issueFile `yaml:"issues"`
}

// issueFile represents one issue entry in a board
type issueFile struct {
	ID     int64    `yaml:"id"`
	Title  string   `yaml:"title"`
	Body   string   `yaml:"body"`
	Repo   string   `yaml:"repo"`
	URL    string   `yaml:"url"`
	Labels []string `yaml:"labels"`
}
