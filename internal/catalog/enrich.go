package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/onesmallpr/questboard/internal/models"
)

// Fallback enrichment values. Callers recognise degraded confidence by the
// reasoning prose only.
const (
	FallbackReasoning = "AI analysis failed, defaulting to label-based classification."
	UnknownEstimate   = "Unknown"
	NoDescription     = "No description provided."
	UnknownElement    = "Unknown"
)

// elements in match priority order
var elements = []string{"python", "javascript", "typescript", "go", "rust", "java", "html", "css", "json"}

var elementAliases = map[string]string{
	"golang": "go",
	"js":     "javascript",
	"ts":     "typescript",
	"py":     "python",
}

var baseSkills = []string{"Git", "GitHub"}

// enrichAll analyzes every issue with bounded concurrency. The result slice is
// aligned with issues; failed items carry the fallback enrichment.
func (c *Catalog) enrichAll(ctx context.Context, issues []models.RawIssue) ([]models.Enrichment, int) {
	results := make([]models.Enrichment, len(issues))
	ok := make([]bool, len(issues))

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.EnrichConcurrency)

	for i := range issues {
		g.Go(func() error {
			issue := &issues[i]
			enr, err := c.enrich(ctx, issue)
			if err != nil {
				slog.Warn("issue analysis failed, using fallback",
					"quest_id", issue.QuestID(),
					"error", err,
				)
				c.recorder.EnrichmentFallback()
				results[i] = FallbackEnrichment(issue)
				return nil
			}
			results[i] = enr
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, v := range ok {
		if v {
			succeeded++
		}
	}
	return results, succeeded
}

func (c *Catalog) enrich(ctx context.Context, issue *models.RawIssue) (enr models.Enrichment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.AnalysisTimeout)
	defer cancel()

	verdict, err := c.analyzer.Analyze(ctx, issue.Title, issue.Body)
	if err != nil {
		return models.Enrichment{}, err
	}
	if verdict == nil {
		return models.Enrichment{}, fmt.Errorf("analysis returned no verdict")
	}
	return EnrichmentFromAnalysis(verdict, issue), nil
}

// EnrichmentFromAnalysis maps an analysis verdict onto a quest enrichment
func EnrichmentFromAnalysis(a *models.Analysis, issue *models.RawIssue) models.Enrichment {
	complexity := models.ComplexityMedium
	if a.Easy() {
		complexity = models.ComplexityLow
	}

	return models.Enrichment{
		Complexity:            complexity,
		EstimatedTime:         a.EstimatedTime,
		RequiredSkills:        append([]string(nil), baseSkills...),
		ProjectBackground:     "Contribute to " + issue.RepoName(),
		TechnicalRequirements: a.Reasoning,
	}
}

// FallbackEnrichment is substituted when analysis of issue fails.
// Complexity is left empty so rank derivation falls through to labels.
func FallbackEnrichment(issue *models.RawIssue) models.Enrichment {
	return models.Enrichment{
		EstimatedTime:         UnknownEstimate,
		RequiredSkills:        append([]string(nil), baseSkills...),
		ProjectBackground:     "Contribute to " + issue.RepoName(),
		TechnicalRequirements: FallbackReasoning,
	}
}

// IsFallback reports whether e is a fallback enrichment
func IsFallback(e models.Enrichment) bool {
	return e.TechnicalRequirements == FallbackReasoning
}

// BuildQuest maps a raw issue and its enrichment into a quest
func BuildQuest(issue *models.RawIssue, enr models.Enrichment, descriptionLimit int) models.Quest {
	labels := issue.LabelNames()
	repo := issue.RepoName()
	rank := DeriveRank(enr.Complexity, labels)

	return models.Quest{
		ID:          issue.QuestID(),
		Title:       issue.Title,
		Repo:        repo,
		Rank:        rank,
		Labels:      labels,
		Description: Describe(issue.Body, descriptionLimit),
		URL:         issue.HTMLURL,
		Element:     DetermineElement(labels, repo),
		Rewards:     RewardsFor(rank),
		Analysis:    enr,
	}
}

// DeriveRank picks the tier for a quest. A "low" complexity verdict wins;
// otherwise label substrings decide, checked case-insensitively in the order
// medium/help wanted, then hard/bug, else the highest tier.
func DeriveRank(complexity string, labels []string) models.Rank {
	if complexity == models.ComplexityLow {
		return models.RankE
	}
	if anyLabelContains(labels, "medium", "help wanted") {
		return models.RankD
	}
	if anyLabelContains(labels, "hard", "bug") {
		return models.RankC
	}
	return models.RankB
}

func anyLabelContains(labels []string, needles ...string) bool {
	for _, l := range labels {
		l = strings.ToLower(l)
		for _, n := range needles {
			if strings.Contains(l, n) {
				return true
			}
		}
	}
	return false
}

// DetermineElement returns the language tag of a quest, matching whole tokens
// of the labels and repository name so that "good first issue" is not Go.
func DetermineElement(labels []string, repo string) string {
	tokens := make(map[string]struct{})
	sources := make([]string, 0, len(labels)+1)
	sources = append(sources, labels...)
	sources = append(sources, repo)
	for _, s := range sources {
		for _, tok := range tokenize(s) {
			if alias, ok := elementAliases[tok]; ok {
				tok = alias
			}
			tokens[tok] = struct{}{}
		}
	}

	for _, lang := range elements {
		if _, ok := tokens[lang]; ok {
			return strings.ToUpper(lang[:1]) + lang[1:]
		}
	}
	return UnknownElement
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// RewardsFor returns the rewards granted for a rank
func RewardsFor(rank models.Rank) models.Rewards {
	switch rank {
	case models.RankE:
		return models.Rewards{XP: 100, Contribution: 50}
	case models.RankD:
		return models.Rewards{XP: 200, Contribution: 100}
	default:
		return models.Rewards{XP: 500, Contribution: 100}
	}
}

// Describe truncates body to limit runes with a "..." suffix. A non-positive
// limit disables truncation.
func Describe(body string, limit int) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return NoDescription
	}
	if limit <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= limit {
		return body
	}
	return string(runes[:limit]) + "..."
}

// Dedupe collapses issues with the same id. Each id keeps the position of its
// first occurrence and the record of its last.
func Dedupe(issues []models.RawIssue) []models.RawIssue {
	index := make(map[int64]int, len(issues))
	out := make([]models.RawIssue, 0, len(issues))
	for _, issue := range issues {
		if i, ok := index[issue.ID]; ok {
			out[i] = issue
			continue
		}
		index[issue.ID] = len(out)
		out = append(out, issue)
	}
	return out
}

// Filter returns the quests matching f, preserving order
func Filter(quests []models.Quest, f models.QuestFilters) []models.Quest {
	if f.Rank == "" && f.Element == "" && f.Label == "" {
		return quests
	}

	out := make([]models.Quest, 0, len(quests))
	for _, q := range quests {
		if f.Rank != "" && !strings.EqualFold(string(q.Rank), string(f.Rank)) {
			continue
		}
		if f.Element != "" && !strings.EqualFold(q.Element, f.Element) {
			continue
		}
		if f.Label != "" && !hasLabel(q.Labels, f.Label) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func hasLabel(labels []string, want string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, want) {
			return true
		}
	}
	return false
}
