// Package analysis judges whether an upstream issue is truly beginner friendly.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/onesmallpr/questboard/internal/llm"
	"github.com/onesmallpr/questboard/internal/llmtext"
	"github.com/onesmallpr/questboard/internal/models"
)

// BodyBudget is the number of body characters sent for analysis
const BodyBudget = 1000

// ErrIncompleteVerdict is returned when the model omits required fields
var ErrIncompleteVerdict = errors.New("analysis verdict is missing required fields")

const systemPrompt = "You are a strict code auditor."

const promptTemplate = `You are an expert open source maintainer. Analyze the following GitHub issue to determine if it is TRULY a "Good First Issue" suitable for a beginner.

Issue Title: %q
Issue Body: %q (truncated)

Criteria for "Easy":
- Clear scope (e.g., fix typo, update docs, simple bug fix).
- Does NOT require deep architectural knowledge.
- Does NOT involve complex concurrency, security, or core logic changes.

Return ONLY a raw JSON object:
{
  "isEasy": boolean,
  "reasoning": "string (short explanation why)",
  "estimatedTime": "string (e.g., '30 mins', '2 hours')"
}`

// Analyzer asks a Completer for a difficulty verdict
type Analyzer struct {
	completer llm.Completer
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(completer llm.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

// Analyze returns the verdict for one issue. Any transport or parse failure is
// returned as an error; substituting a fallback is the caller's decision.
func (a *Analyzer) Analyze(ctx context.Context, title, body string) (*models.Analysis, error) {
	text, err := a.completer.Complete(ctx, systemPrompt, BuildPrompt(title, body))
	if err != nil {
		return nil, err
	}

	verdict, err := llmtext.ParseJSON[models.Analysis](text)
	if err != nil {
		return nil, err
	}

	if verdict.IsEasy == nil || verdict.EstimatedTime == "" {
		return nil, ErrIncompleteVerdict
	}

	return &verdict, nil
}

// BuildPrompt renders the analysis prompt with the body cut to BodyBudget characters
func BuildPrompt(title, body string) string {
	return fmt.Sprintf(promptTemplate, title, truncate(body, BodyBudget))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
