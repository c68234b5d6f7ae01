// Package extract turns normalized content units into candidate todos with a
// single batched model call. Batching all sources into one prompt lets the
// model see cross-source context and bounds API cost to one call per run.
package extract

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

// ErrExtractionFailed marks a run whose extraction call exhausted retries or
// produced no recoverable output. The run continues with zero candidates.
var ErrExtractionFailed = errors.New("extraction failed")

// Outcome tags the extraction result variant.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomePartial Outcome = "partial" // some response items were dropped
	OutcomeFailed  Outcome = "failed"
)

// Result is the tagged outcome of one extraction pass. On OutcomeFailed,
// Candidates is empty and Err wraps ErrExtractionFailed; the caller degrades
// to zero new candidates instead of aborting the run.
type Result struct {
	Outcome    Outcome
	Candidates []models.CandidateTodo
	Warnings   []string
	Err        error
}

// Invoker performs the extraction stage.
type Invoker struct {
	client   *llm.ResilientClient
	identity config.Identity
	features config.Features
	// confidence assigned when the model omits the field
	defaultConfidence float64
	// units older than this are dropped post-extraction
	maxSourceAge time.Duration
}

// NewInvoker creates an extraction invoker.
func NewInvoker(client *llm.ResilientClient, cfg *config.Config) *Invoker {
	return &Invoker{
		client:            client,
		identity:          cfg.Identity,
		features:          cfg.Features,
		defaultConfidence: cfg.Thresholds.DefaultConfidence,
		maxSourceAge:      time.Duration(cfg.Limits.LookbackDays) * 24 * time.Hour,
	}
}

// rawTodo mirrors the model's response schema. Every field except task is
// optional; nothing here is trusted past parseCandidates.
type rawTodo struct {
	Task       string   `json:"task"`
	AssignedTo *string  `json:"assigned_to"`
	DueDate    *string  `json:"due_date"`
	Priority   string   `json:"priority"`
	Category   []string `json:"category"`
	Source     string   `json:"source"`
	SourceID   *int     `json:"source_id"`
	Confidence *float64 `json:"confidence"`
	Type       string   `json:"type"`
}

// Extract runs the single batched extraction call over all content units.
func (iv *Invoker) Extract(ctx context.Context, units []models.ContentUnit, now time.Time) Result {
	logger := logging.GetCurrentLogger()

	if len(units) == 0 {
		logger.Log("No content units; skipping extraction call")
		return Result{Outcome: OutcomeOK}
	}

	prompt := BuildPrompt(units, iv.identity, iv.features, now)

	var raw []rawTodo
	if _, err := iv.client.CompleteStructured(ctx, "extraction", prompt, &raw); err != nil {
		logger.LogError("extraction", err)
		return Result{
			Outcome: OutcomeFailed,
			Err:     fmt.Errorf("%w: %v", ErrExtractionFailed, err),
		}
	}

	candidates, warnings := iv.parseCandidates(raw, units, now)
	logger.Log("Extraction produced %d candidates (%d response items, %d warnings)",
		len(candidates), len(raw), len(warnings))

	outcome := OutcomeOK
	if len(warnings) > 0 {
		outcome = OutcomePartial
	}
	return Result{Outcome: outcome, Candidates: candidates, Warnings: warnings}
}

// parseCandidates validates raw response items into CandidateTodos. Items
// without a task are dropped; invalid enum values fall back to safe defaults;
// the fingerprint is always computed locally, never taken from the model.
func (iv *Invoker) parseCandidates(raw []rawTodo, units []models.ContentUnit, now time.Time) ([]models.CandidateTodo, []string) {
	var out []models.CandidateTodo
	var warnings []string

	cutoff := now.Add(-iv.maxSourceAge)

	for i, item := range raw {
		task := strings.TrimSpace(item.Task)
		if task == "" {
			warnings = append(warnings, fmt.Sprintf("response item %d dropped: missing task", i))
			continue
		}

		source, stale := resolveSource(item, units, cutoff)
		if stale {
			warnings = append(warnings, fmt.Sprintf("candidate %q dropped: source older than lookback window", task))
			continue
		}

		confidence := iv.defaultConfidence
		if item.Confidence != nil {
			confidence = clamp01(*item.Confidence)
		}

		candidate := models.CandidateTodo{
			Task:        task,
			Priority:    normalizePriority(item.Priority, iv.features),
			Category:    normalizeCategory(item.Category, iv.features),
			Confidence:  confidence,
			Sources:     []models.SourceRef{source},
			Fingerprint: fingerprint.Fingerprint(task),
		}
		if item.AssignedTo != nil {
			candidate.Assignee = strings.TrimSpace(*item.AssignedTo)
		}
		if item.DueDate != nil {
			candidate.DueDate = normalizeDueDate(*item.DueDate)
		}

		out = append(out, candidate)
	}

	return out, warnings
}

// resolveSource maps the model-echoed source_id back to the content unit and
// builds the attribution ref from local data (the link is never taken from
// the model). Returns stale=true when the unit predates the cutoff.
func resolveSource(item rawTodo, units []models.ContentUnit, cutoff time.Time) (models.SourceRef, bool) {
	if item.SourceID != nil && *item.SourceID >= 0 && *item.SourceID < len(units) {
		unit := units[*item.SourceID]
		if !unit.Timestamp.IsZero() && unit.Timestamp.Before(cutoff) {
			return models.SourceRef{}, true
		}
		return models.SourceRef{
			Source:   unit.Source,
			SourceID: unit.SourceID,
			Link:     unit.Link,
		}, false
	}

	// no usable marker: keep the todo but attribute only the platform
	source := models.Source(item.Source)
	switch source {
	case models.SourceChat, models.SourceEmail, models.SourceMeeting, models.SourceStoreNote:
	default:
		source = models.SourceChat
	}
	return models.SourceRef{Source: source, SourceID: "unattributed"}, false
}

func normalizePriority(p string, features config.Features) models.Priority {
	if !features.PriorityScoring {
		return models.PriorityMedium
	}
	priority := models.Priority(strings.ToLower(strings.TrimSpace(p)))
	if !models.ValidPriority(priority) {
		return models.PriorityMedium
	}
	return priority
}

func normalizeCategory(tags []string, features config.Features) []string {
	if !features.CategoryTagging {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if models.ValidCategory(tag) && !seen[tag] {
			out = append(out, tag)
			seen[tag] = true
		}
	}
	return out
}

// normalizeDueDate keeps only well-formed YYYY-MM-DD values.
func normalizeDueDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return ""
	}
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return ""
	}
	return s
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
