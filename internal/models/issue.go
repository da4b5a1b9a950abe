package models

import (
	"strconv"
	"strings"
)

// RawIssue is an issue record as returned by the upstream issue search
type RawIssue struct {
	ID            int64      `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Body          string     `json:"body" yaml:"body"`
	HTMLURL       string     `json:"html_url" yaml:"html_url"`
	RepositoryURL string     `json:"repository_url" yaml:"repository_url"`
	Labels        []RawLabel `json:"labels" yaml:"labels"`
}

// RawLabel is an upstream issue label
type RawLabel struct {
	Name string `json:"name" yaml:"name"`
}

const repositoryAPIPrefix = "https://api.github.com/repos/"

// QuestID returns the external identifier of the issue
func (i *RawIssue) QuestID() string {
	return strconv.FormatInt(i.ID, 10)
}

// RepoName returns "owner/name" extracted from the repository API URL
func (i *RawIssue) RepoName() string {
	return strings.TrimPrefix(i.RepositoryURL, repositoryAPIPrefix)
}

// LabelNames returns label names in upstream order
func (i *RawIssue) LabelNames() []string {
	names := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		names = append(names, l.Name)
	}
	return names
}

// Analysis is the verdict of the per-item difficulty analysis.
// Pointer fields distinguish "missing" from zero values when parsing.
type Analysis struct {
	IsEasy        *bool  `json:"isEasy"`
	Reasoning     string `json:"reasoning"`
	EstimatedTime string `json:"estimatedTime"`
}

// Easy reports the analysis verdict; a missing verdict counts as not easy
func (a *Analysis) Easy() bool {
	return a.IsEasy != nil && *a.IsEasy
}
