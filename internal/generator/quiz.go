package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/onesmallpr/questboard/internal/llmtext"
	"github.com/onesmallpr/questboard/internal/models"
)

// QuizLength is the number of items in every trial
const QuizLength = 3

const quizSystemPrompt = "You are an expert mentor for open source contributors."

const quizPromptTemplate = `Based on the following task description for the repository %q and the user's profile, generate %d multiple-choice questions.

The goal is to:
1. Test if the user understands the core requirements of the task.
2. Verify if the user has the necessary background knowledge (based on their profile) to attempt this.
3. Implicitly judge if this task is suitable for them.

User Profile: %q
Task Title: %q
Task Description: %q

Return ONLY a raw JSON array (no markdown formatting, no code blocks) where each element is:
{
  "id": number,
  "type": "multiple_choice",
  "question": "string",
  "options": ["string", "string", "string", "string"],
  "correctAnswerIndex": number (0-indexed index of the correct option)
}`

// quizItemWire accepts both answer field spellings models emit
type quizItemWire struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
	CorrectAnswer      *int     `json:"correctAnswer"`
}

// FallbackQuiz returns the fixed trial used when generation fails
func FallbackQuiz() []models.QuizItem {
	return []models.QuizItem{
		{
			ID:                 1,
			Type:               models.QuizItemMultipleChoice,
			Question:           "What is the primary goal of this task?",
			Options:            []string{"Fix a bug", "Update documentation", "Add a new feature", "Improve performance"},
			CorrectAnswerIndex: 0,
		},
		{
			ID:                 2,
			Type:               models.QuizItemMultipleChoice,
			Question:           "What is the first step you should take?",
			Options:            []string{"Commit changes", "Fork the repository", "Push to main", "Delete the file"},
			CorrectAnswerIndex: 1,
		},
		{
			ID:                 3,
			Type:               models.QuizItemMultipleChoice,
			Question:           "How do you verify your changes?",
			Options:            []string{"Hope for the best", "Run tests or build locally", "Ask the maintainer immediately", "Submit PR without checking"},
			CorrectAnswerIndex: 1,
		},
	}
}

// Quiz generates the trial for a quest
func (g *Generator) Quiz(ctx context.Context, quest *models.Quest, skillLevel string) []models.QuizItem {
	skillLevel = g.skillLevel(skillLevel)
	key := cacheKey(KindQuiz, quest.ID, skillLevel)

	if raw, ok := g.cached(ctx, key); ok {
		if items, err := ParseQuiz(raw); err == nil {
			g.recorder.ObserveGeneration(KindQuiz, OutcomeCached)
			return items
		}
	}

	text, err := g.complete(ctx, quizSystemPrompt, BuildQuizPrompt(quest, skillLevel))
	if err != nil {
		slog.Warn("quiz generation failed, using fallback", "quest_id", quest.ID, "error", err)
		g.recorder.ObserveGeneration(KindQuiz, OutcomeFallback)
		return FallbackQuiz()
	}

	items, err := ParseQuiz(text)
	if err != nil {
		slog.Warn("quiz output rejected, using fallback", "quest_id", quest.ID, "error", err)
		g.recorder.ObserveGeneration(KindQuiz, OutcomeFallback)
		return FallbackQuiz()
	}

	if encoded, err := json.Marshal(items); err == nil {
		g.store(ctx, key, string(encoded))
	}
	g.recorder.ObserveGeneration(KindQuiz, OutcomeGenerated)
	return items
}

// ParseQuiz decodes model output into quiz items. Items are renumbered from 1
// and every item must carry four options and an in-range answer index.
func ParseQuiz(text string) ([]models.QuizItem, error) {
	wire, err := llmtext.ParseJSON[[]quizItemWire](text)
	if err != nil {
		return nil, err
	}
	if len(wire) != QuizLength {
		return nil, fmt.Errorf("expected %d quiz items, got %d", QuizLength, len(wire))
	}

	items := make([]models.QuizItem, len(wire))
	for i, w := range wire {
		answer := w.CorrectAnswerIndex
		if answer == nil {
			answer = w.CorrectAnswer
		}
		if answer == nil {
			return nil, fmt.Errorf("quiz item %d has no answer index", i+1)
		}

		items[i] = models.QuizItem{
			ID:                 i + 1,
			Type:               models.QuizItemMultipleChoice,
			Question:           w.Question,
			Options:            w.Options,
			CorrectAnswerIndex: *answer,
		}
		if !items[i].Valid() {
			return nil, fmt.Errorf("quiz item %d is malformed", i+1)
		}
	}
	return items, nil
}

// BuildQuizPrompt renders the quiz prompt for a quest
func BuildQuizPrompt(quest *models.Quest, skillLevel string) string {
	return fmt.Sprintf(quizPromptTemplate, quest.Repo, QuizLength, skillLevel, quest.Title, quest.Description)
}
