package models

import "time"

// QuizItemMultipleChoice is the only quiz item type produced
const QuizItemMultipleChoice = "multiple_choice"

// QuizOptionCount is the number of options every quiz item carries
const QuizOptionCount = 4

// QuizItem is one multiple-choice question of a quest trial
type QuizItem struct {
	ID                 int      `json:"id"`
	Type               string   `json:"type"`
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
}

// Valid reports whether the item has the fixed quiz shape
func (q *QuizItem) Valid() bool {
	if q.Question == "" || len(q.Options) != QuizOptionCount {
		return false
	}
	for _, opt := range q.Options {
		if opt == "" {
			return false
		}
	}
	return q.CorrectAnswerIndex >= 0 && q.CorrectAnswerIndex < QuizOptionCount
}

// Protocol is a generated markdown guidance document for a quest
type Protocol struct {
	ID          string    `json:"protocolId"`
	QuestID     string    `json:"questId"`
	Content     string    `json:"content"`
	DownloadURL string    `json:"downloadUrl"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// GenerateRequest carries the caller skill level for quiz and protocol generation
type GenerateRequest struct {
	SkillLevel string `json:"skillLevel"`
}

// AssessmentResponse wraps a generated quiz
type AssessmentResponse struct {
	Questions []QuizItem `json:"questions"`
}

// AcceptRequest submits trial answers for a quest
type AcceptRequest struct {
	Answers []int `json:"answers"`
}

// AcceptResponse is returned when accepting a quest
type AcceptResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ProtocolURL string `json:"protocolUrl,omitempty"`
}

// ListResponse is the quest listing payload
type ListResponse struct {
	Entries         []Quest `json:"entries"`
	Total           int     `json:"total"`
	LastRefreshedAt string  `json:"lastRefreshedAt"`
}

// RefreshResponse reports a manual refresh outcome
type RefreshResponse struct {
	Refreshed bool `json:"refreshed"`
	Count     int  `json:"count"`
}

// StreamEvent is pushed to websocket subscribers
type StreamEvent struct {
	Type            string `json:"type"`
	Count           int    `json:"count,omitempty"`
	LastRefreshedAt string `json:"lastRefreshedAt,omitempty"`
	Data            string `json:"data,omitempty"`
}
