package models

import "time"

// Rank is the RPG tier of a quest, from E (easiest) to B (hardest)
type Rank string

const (
	RankE Rank = "E"
	RankD Rank = "D"
	RankC Rank = "C"
	RankB Rank = "B"
)

// Tier returns the ordinal of the rank (1 = lowest, 4 = highest, 0 = unknown)
func (r Rank) Tier() int {
	switch r {
	case RankE:
		return 1
	case RankD:
		return 2
	case RankC:
		return 3
	case RankB:
		return 4
	}
	return 0
}

// IsValid reports whether r is one of the four known tiers
func (r Rank) IsValid() bool {
	return r.Tier() > 0
}

// Complexity values produced by enrichment
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
)

// Quest represents one actionable task surfaced to a user (a catalog entry)
type Quest struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Repo        string     `json:"repo"`
	Rank        Rank       `json:"rank"`
	Labels      []string   `json:"labels"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Element     string     `json:"element"`
	Rewards     Rewards    `json:"rewards"`
	Analysis    Enrichment `json:"analysis"`
}

// Rewards granted for completing a quest
type Rewards struct {
	XP           int `json:"xp"`
	Contribution int `json:"contribution"`
}

// Enrichment is the best-effort analysis attached to a quest.
// Complexity is empty when the analysis failed and a fallback was used.
type Enrichment struct {
	Complexity            string   `json:"complexity"`
	EstimatedTime         string   `json:"estimatedTime"`
	RequiredSkills        []string `json:"requiredSkills"`
	ProjectBackground     string   `json:"projectBackground"`
	TechnicalRequirements string   `json:"technicalRequirements"`
}

// Snapshot is a committed catalog state
type Snapshot struct {
	Quests          []Quest   `json:"entries"`
	LastRefreshedAt time.Time `json:"lastRefreshedAt"`
}

// QuestFilters narrows a quest listing. Empty fields match everything.
type QuestFilters struct {
	Rank    Rank
	Element string
	Label   string
}
