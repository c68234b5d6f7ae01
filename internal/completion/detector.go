// Package completion decides whether recent content indicates that an
// existing open task was finished. False-positive completions cost more than
// false negatives (a task marked done disappears from view), so ambiguous
// signals degrade to a reviewable tentative verdict rather than a silent
// completion.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/todoharvest/internal/config"
	"github.com/todoharvest/internal/fingerprint"
	"github.com/todoharvest/internal/llm"
	"github.com/todoharvest/internal/logging"
	"github.com/todoharvest/pkg/models"
)

// ErrDetectionFailed marks a run where the completion model call exhausted
// retries or returned nothing parseable. Every task falls back to still_open.
var ErrDetectionFailed = errors.New("completion detection failed")

// VerdictKind classifies one task's completion state for this run.
type VerdictKind string

const (
	VerdictStillOpen VerdictKind = "still_open"
	VerdictDone      VerdictKind = "done"
	VerdictTentative VerdictKind = "tentative"
)

// Verdict is the per-task outcome: the classification plus the model's
// confidence that the task was completed.
type Verdict struct {
	Kind       VerdictKind
	Confidence float64
}

// Result maps every considered task id to a verdict. Err is non-nil (wrapping
// ErrDetectionFailed) when the model call failed and all verdicts defaulted.
type Result struct {
	Verdicts map[string]Verdict
	Warnings []string
	Err      error
}

// Detector batches all open tasks with related recent content into one model
// call and applies the two-threshold policy to each returned confidence.
type Detector struct {
	client        *llm.ResilientClient
	doneThreshold float64
	tentativeMin  float64
}

func NewDetector(client *llm.ResilientClient, cfg *config.Config) *Detector {
	return &Detector{
		client:        client,
		doneThreshold: cfg.Thresholds.CompletionDone,
		tentativeMin:  cfg.Thresholds.CompletionTentative,
	}
}

// completionItem is the response schema for one task.
type completionItem struct {
	TaskID     string   `json:"task_id"`
	Completed  *bool    `json:"completed"`
	Confidence *float64 `json:"confidence"`
	Evidence   string   `json:"evidence"`
}

// Detect evaluates every open or in-progress task. Tasks with no related
// content units get still_open at confidence 0 without any model spend; the
// rest go into one batched call.
func (d *Detector) Detect(ctx context.Context, tasks []models.ExistingTask, units []models.ContentUnit) Result {
	logger := logging.GetCurrentLogger()
	result := Result{Verdicts: make(map[string]Verdict, len(tasks))}

	var gated []models.ExistingTask
	related := make(map[string][]models.ContentUnit)

	for _, task := range tasks {
		if task.Status != models.StatusOpen && task.Status != models.StatusInProgress {
			continue
		}
		matches := relatedUnits(task, units)
		if len(matches) == 0 {
			result.Verdicts[task.ID] = Verdict{Kind: VerdictStillOpen, Confidence: 0}
			continue
		}
		gated = append(gated, task)
		related[task.ID] = matches
	}

	if len(gated) == 0 {
		logger.Log("Completion detection: no tasks with related content, skipping model call")
		return result
	}

	logger.LogSection("COMPLETION DETECTION")
	logger.Log("Completion detection: %d of %d tasks have related content", len(gated), len(tasks))

	prompt := buildCompletionPrompt(gated, related)

	var items []completionItem
	if _, err := d.client.CompleteStructured(ctx, "completion", prompt, &items); err != nil {
		logger.LogError("completion detection", err)
		for _, task := range gated {
			result.Verdicts[task.ID] = Verdict{Kind: VerdictStillOpen, Confidence: 0}
		}
		result.Err = fmt.Errorf("%w: %v", ErrDetectionFailed, err)
		return result
	}

	byID := make(map[string]completionItem, len(items))
	for _, item := range items {
		if item.TaskID == "" {
			result.Warnings = append(result.Warnings, "completion response item missing task_id, dropped")
			continue
		}
		byID[item.TaskID] = item
	}

	for _, task := range gated {
		item, ok := byID[task.ID]
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("no completion verdict returned for task %s, treating as still open", task.ID))
			result.Verdicts[task.ID] = Verdict{Kind: VerdictStillOpen, Confidence: 0}
			continue
		}
		result.Verdicts[task.ID] = d.classify(item)
	}

	return result
}

// classify applies the two-threshold policy. Both boundaries are inclusive:
// confidence exactly at the done threshold is done, exactly at the tentative
// floor is tentative.
func (d *Detector) classify(item completionItem) Verdict {
	confidence := 0.0
	if item.Confidence != nil {
		confidence = *item.Confidence
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	if item.Completed != nil && !*item.Completed {
		return Verdict{Kind: VerdictStillOpen, Confidence: confidence}
	}

	switch {
	case confidence >= d.doneThreshold:
		return Verdict{Kind: VerdictDone, Confidence: confidence}
	case confidence >= d.tentativeMin:
		return Verdict{Kind: VerdictTentative, Confidence: confidence}
	default:
		return Verdict{Kind: VerdictStillOpen, Confidence: confidence}
	}
}

// relatedUnits gates the model call: a unit relates to a task when the
// task's assignee appears among its participants, when the task's fingerprint
// tokens substantially overlap the unit's text, or when the unit quotes the
// task outright.
func relatedUnits(task models.ExistingTask, units []models.ContentUnit) []models.ContentUnit {
	taskTokens := fingerprint.Tokens(task.Task)
	taskLower := strings.ToLower(strings.TrimSpace(task.Task))

	var out []models.ContentUnit
	for _, unit := range units {
		if taskLower != "" && strings.Contains(strings.ToLower(unit.Text), taskLower) {
			out = append(out, unit)
			continue
		}
		if tokenOverlap(taskTokens, fingerprint.Tokens(unit.Text)) {
			out = append(out, unit)
			continue
		}
		if task.Assignee != "" && hasParticipant(unit.Participants, task.Assignee) {
			out = append(out, unit)
		}
	}
	return out
}

// tokenOverlap reports whether at least half of the task's tokens (and never
// fewer than two) appear in the unit's text.
func tokenOverlap(taskTokens, unitTokens []string) bool {
	if len(taskTokens) == 0 {
		return false
	}
	unitSet := make(map[string]bool, len(unitTokens))
	for _, t := range unitTokens {
		unitSet[t] = true
	}

	shared := 0
	for _, t := range taskTokens {
		if unitSet[t] {
			shared++
		}
	}

	needed := (len(taskTokens) + 1) / 2
	if needed < 2 {
		needed = len(taskTokens) // single-token tasks must match fully
	}
	return shared >= needed
}

// hasParticipant matches the assignee name against participant strings
// token-wise, so "Ada Example" still matches "ada.example@corp.com".
func hasParticipant(participants []string, name string) bool {
	nameTokens := strings.Fields(strings.ToLower(name))
	if len(nameTokens) == 0 {
		return false
	}

	for _, p := range participants {
		lower := strings.ToLower(p)
		all := true
		for _, token := range nameTokens {
			if !strings.Contains(lower, token) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// buildCompletionPrompt renders each gated task with its related excerpts and
// asks for a per-task completion confidence.
func buildCompletionPrompt(tasks []models.ExistingTask, related map[string][]models.ContentUnit) string {
	var b strings.Builder

	b.WriteString(`You are reviewing open todo tasks against recent messages, emails, and
meeting notes to determine which tasks have been COMPLETED.

A task counts as completed only when the content clearly indicates the work
was finished ("sent it", "done", "merged", "shipped the report"). Someone
merely mentioning or planning the task is NOT completion. When in doubt,
report low confidence.

## Open Tasks

`)

	for _, task := range tasks {
		b.WriteString(fmt.Sprintf("### Task %s\n", task.ID))
		b.WriteString(fmt.Sprintf("Description: %s\n", task.Task))
		if task.Assignee != "" {
			b.WriteString(fmt.Sprintf("Assignee: %s\n", task.Assignee))
		}
		if !task.CreatedAt.IsZero() {
			b.WriteString(fmt.Sprintf("Created: %s\n", task.CreatedAt.Format(time.RFC3339)))
		}
		b.WriteString("Related content:\n")
		for _, unit := range related[task.ID] {
			b.WriteString(fmt.Sprintf("- [%s] %s\n", unit.Source, unit.Text))
		}
		b.WriteString("\n")
	}

	b.WriteString(`Return a JSON array with one entry per task:
[
  {
    "task_id": "the task id exactly as given",
    "completed": true,
    "confidence": 0.9,
    "evidence": "short quote or summary of the completion signal"
  }
]

confidence is your certainty (0.0 to 1.0) that the task is actually complete.
Include every task listed above. Only return the JSON array, no additional text.`)

	return b.String()
}
