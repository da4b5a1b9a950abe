package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/onesmallpr/questboard/internal/llmtext"
	"github.com/onesmallpr/questboard/internal/models"
)

// ErrMissingFrontMatter is returned when a generated protocol lacks the task header
var ErrMissingFrontMatter = errors.New("protocol is missing its front matter")

const protocolSystemPrompt = `You are an expert AI pair programmer assistant named "ONESMALLPR".`

const protocolPromptTemplate = `Generate a structured "Task Protocol" markdown document that guides another AI (like Cursor or Windsurf) to help a human user complete an open source task.

Context:
- Task ID: %s
- Title: %s
- Repository: %s
- Rank: %s
- User Skill Level: %s
- Task Description: %q
- Task URL: %s

Follow this EXACT format. Fill in the parenthesised parts and keep the front matter verbatim:

%s`

// protocolTemplate is rendered verbatim for the fallback document and with
// placeholders as the format shown to the model.
var protocolTemplate = template.Must(template.New("protocol").Parse(`---
task_id: {{.ID}}
repo_name: {{.Repo}}
difficulty_level: Rank {{.Rank}}
user_skill_level: {{.SkillLevel}}
status: READY_FOR_EXECUTION
---

# ONESMALLPR Task Briefing: {{.Title}}

> **To the executing AI (Cursor/Windsurf)**: the user is contributing to open source. The task is "{{.Title}}". Guide them through it step by step.

---

### 1. Context
* **Project**: {{.Repo}}
* **Why it matters**: {{.Background}}

### 2. Objective
* **Task**: {{.Description}}
* **Issue**: {{.URL}}
* **Estimated time**: {{.EstimatedTime}}

### 3. Execution Strategy
1. **Prepare**: {{.Prepare}}
2. **Change**: {{.Change}}
3. **Verify**: {{.Verify}}

### 4. Constraints
* **Match the style**: follow the formatting and conventions already used in the repository.
* **Stay in scope**: do not modify unrelated files or existing data.
* **PR etiquette**: reference the issue in the pull request and describe what changed.

### 5. Learning
{{range .Skills}}* **{{.}}**
{{end}}
---
**Starter prompt**: *"{{.Starter}}"*
`))

type protocolView struct {
	ID            string
	Repo          string
	Rank          models.Rank
	SkillLevel    string
	Title         string
	Background    string
	Description   string
	URL           string
	EstimatedTime string
	Prepare       string
	Change        string
	Verify        string
	Skills        []string
	Starter       string
}

// Protocol generates the guidance document for a quest
func (g *Generator) Protocol(ctx context.Context, quest *models.Quest, skillLevel string) models.Protocol {
	skillLevel = g.skillLevel(skillLevel)

	return models.Protocol{
		ID:          fmt.Sprintf("OSP-%s-%d", quest.ID, g.now().UnixMilli()),
		QuestID:     quest.ID,
		Content:     g.protocolContent(ctx, quest, skillLevel),
		DownloadURL: DownloadPath(quest.ID),
		GeneratedAt: g.now().UTC(),
	}
}

// DownloadPath returns the API path serving a quest protocol as a file
func DownloadPath(questID string) string {
	return "/api/v1/quests/" + questID + "/protocol/download"
}

func (g *Generator) protocolContent(ctx context.Context, quest *models.Quest, skillLevel string) string {
	key := cacheKey(KindProtocol, quest.ID, skillLevel)
	if content, ok := g.cached(ctx, key); ok {
		g.recorder.ObserveGeneration(KindProtocol, OutcomeCached)
		return content
	}

	text, err := g.complete(ctx, protocolSystemPrompt, BuildProtocolPrompt(quest, skillLevel))
	if err == nil {
		text, err = ParseProtocol(text)
	}
	if err != nil {
		slog.Warn("protocol generation failed, using fallback", "quest_id", quest.ID, "error", err)
		g.recorder.ObserveGeneration(KindProtocol, OutcomeFallback)
		return FallbackProtocol(quest, skillLevel)
	}

	g.store(ctx, key, text)
	g.recorder.ObserveGeneration(KindProtocol, OutcomeGenerated)
	return text
}

// ParseProtocol strips a wrapping code fence and checks for the front matter
func ParseProtocol(text string) (string, error) {
	content := llmtext.StripOuterFence(text)
	if content == "" {
		return "", llmtext.ErrEmpty
	}
	if !strings.HasPrefix(content, "---") || !strings.Contains(content, "task_id:") {
		return "", ErrMissingFrontMatter
	}
	return content + "\n", nil
}

// FallbackProtocol renders the fixed protocol document from quest fields
func FallbackProtocol(quest *models.Quest, skillLevel string) string {
	skills := quest.Analysis.RequiredSkills
	if len(skills) == 0 {
		skills = []string{"Git", "GitHub"}
	}

	estimate := quest.Analysis.EstimatedTime
	if estimate == "" {
		estimate = "Unknown"
	}

	return render(protocolView{
		ID:            quest.ID,
		Repo:          quest.Repo,
		Rank:          quest.Rank,
		SkillLevel:    skillLevel,
		Title:         quest.Title,
		Background:    "a small, well-scoped fix is the fastest way to learn how " + quest.Repo + " is built and reviewed.",
		Description:   quest.Description,
		URL:           quest.URL,
		EstimatedTime: estimate,
		Prepare:       "fork " + quest.Repo + ", clone your fork and create a branch for this change.",
		Change:        "locate the code or docs described in the issue and make the smallest change that resolves it.",
		Verify:        "run the project's tests or build locally before opening a pull request.",
		Skills:        skills,
		Starter:       "AI assistant, help me understand the structure of " + quest.Repo + " and find where this change belongs.",
	})
}

// BuildProtocolPrompt renders the protocol prompt for a quest
func BuildProtocolPrompt(quest *models.Quest, skillLevel string) string {
	format := render(protocolView{
		ID:            quest.ID,
		Repo:          quest.Repo,
		Rank:          quest.Rank,
		SkillLevel:    skillLevel,
		Title:         quest.Title,
		Background:    "(explain why this task matters)",
		Description:   quest.Description,
		URL:           quest.URL,
		EstimatedTime: "(estimate)",
		Prepare:       "(steps to fork, clone and locate files)",
		Change:        "(specific instructions on what to change)",
		Verify:        "(how to verify the change)",
		Skills:        []string{"(Concept 1)", "(Concept 2)"},
		Starter:       "(a specific starter prompt for the user)",
	})

	return fmt.Sprintf(protocolPromptTemplate,
		quest.ID, quest.Title, quest.Repo, quest.Rank, skillLevel, quest.Description, quest.URL, format)
}

func render(v protocolView) string {
	var buf bytes.Buffer
	if err := protocolTemplate.Execute(&buf, v); err != nil {
		// the template is fixed and its fields are plain strings
		panic(fmt.Sprintf("protocol template: %v", err))
	}
	return buf.String()
}
