// Package pipeline orchestrates one run: collect content, extract candidate
// todos, reconcile them against the existing task snapshot, and apply the
// resulting plan. Each run is a pure pass over freshly fetched inputs; no
// state is carried between runs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/todoharvest/internal/completion"
	"github.com/todoharvest/internal/config"
	"github.com/todoharvest/internal/content"
	"github.com/todoharvest/internal/dedupe"
	"github.com/todoharvest/internal/extract"
	"github.com/todoharvest/internal/llm"
	"github.com/todoharvest/internal/logging"
	"github.com/todoharvest/internal/plan"
	"github.com/todoharvest/internal/store"
	"github.com/todoharvest/pkg/models"
)

// Collector pulls raw items from one content source. A failing collector
// degrades to an empty contribution for its source, never a failed run.
type Collector interface {
	Source() models.Source
	Collect(ctx context.Context, since time.Time) ([]content.RawItem, error)
}

// Service wires the pipeline stages together for repeated runs.
type Service struct {
	cfg        *config.Config
	extractor  *extract.Invoker
	deduper    *dedupe.Engine
	detector   *completion.Detector
	tasks      store.TaskStore
	collectors []Collector
	dryRun     bool
	now        func() time.Time
}

type Option func(*Service)

func WithDryRun(dryRun bool) Option {
	return func(s *Service) { s.dryRun = dryRun }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg *config.Config, client *llm.ResilientClient, tasks store.TaskStore, collectors []Collector, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		extractor:  extract.NewInvoker(client, cfg),
		deduper:    dedupe.New(cfg),
		detector:   completion.NewDetector(client, cfg),
		tasks:      tasks,
		collectors: collectors,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one full pipeline pass. The returned summary is always
// populated, also on error paths that produced partial stage output.
func (s *Service) Run(ctx context.Context) (models.RunSummary, error) {
	started := s.now()
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: started,
	}

	runLogger, err := logging.StartRunLogging(summary.RunID, false)
	if err != nil {
		log.Warn().Err(err).Msg("run log file unavailable, continuing without")
	}
	defer runLogger.Close()

	// snapshot first: the run reconciles against exactly this state
	snapshot, err := s.tasks.ListOpenTasks(ctx)
	if err != nil {
		summary.Duration = s.now().Sub(started)
		return summary, fmt.Errorf("list open tasks: %w", err)
	}
	runLogger.Log("Snapshot: %d open tasks", len(snapshot))

	units := s.collect(ctx, started, &summary)
	runLogger.Log("Collected %d content units", len(units))

	candidates := s.extractCandidates(ctx, units, started, &summary)

	deduped := s.deduper.Dedupe(candidates, snapshot)
	summary.Duplicates = deduped.Duplicates

	verdicts := s.detector.Detect(ctx, snapshot, units)
	if verdicts.Err != nil {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("completion detection failed, all tasks kept open: %v", verdicts.Err))
	}
	summary.Warnings = append(summary.Warnings, verdicts.Warnings...)

	ops := plan.Build(snapshot, verdicts.Verdicts, deduped.Survivors, deduped.ExtraSources)
	runLogger.Log("Plan: %d ops", len(ops))

	// a cancelled run must not apply a partial plan
	if err := ctx.Err(); err != nil {
		summary.Duration = s.now().Sub(started)
		return summary, fmt.Errorf("run cancelled before apply: %w", err)
	}

	if s.dryRun {
		s.tally(&summary, dryRunResults(ops))
		summary.Duration = s.now().Sub(started)
		runLogger.Log("Dry run: plan not applied")
		return summary, nil
	}

	results, err := s.tasks.ApplyOps(ctx, ops)
	if err != nil {
		summary.Duration = s.now().Sub(started)
		return summary, fmt.Errorf("apply ops: %w", err)
	}
	s.tally(&summary, results)

	summary.Duration = s.now().Sub(started)
	runLogger.Log("Run complete: %d created, %d duplicates, %d completed, %d tentative, %d failed ops",
		summary.Created, summary.Duplicates, summary.Completed, summary.Tentative, summary.FailedOps)
	return summary, nil
}

// collect gathers raw items from every source inside the lookback window.
// One source failing is logged as a warning; the rest still contribute.
func (s *Service) collect(ctx context.Context, now time.Time, summary *models.RunSummary) []models.ContentUnit {
	since := now.AddDate(0, 0, -s.cfg.Limits.LookbackDays)
	logger := logging.GetCurrentLogger()

	bySource := make(map[models.Source][]content.RawItem, len(s.collectors))
	for _, collector := range s.collectors {
		items, err := collector.Collect(ctx, since)
		if err != nil {
			logger.LogError(fmt.Sprintf("collect %s", collector.Source()), err)
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("source %s failed, contributing nothing: %v", collector.Source(), err))
			continue
		}
		bySource[collector.Source()] = append(bySource[collector.Source()], items...)
	}

	return content.Normalize(bySource, s.cfg.Limits.MaxContentChars)
}

func (s *Service) extractCandidates(ctx context.Context, units []models.ContentUnit, now time.Time, summary *models.RunSummary) []models.CandidateTodo {
	result := s.extractor.Extract(ctx, units, now)
	summary.Warnings = append(summary.Warnings, result.Warnings...)
	if result.Outcome == extract.OutcomeFailed {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("extraction failed, no new candidates this run: %v", result.Err))
	}
	return result.Candidates
}

func (s *Service) tally(summary *models.RunSummary, results []models.OpResult) {
	for _, r := range results {
		if !r.Applied {
			summary.FailedOps++
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("%s op failed: %s", r.Op.Kind, r.Error))
			continue
		}
		switch r.Op.Kind {
		case models.OpCreate:
			summary.Created++
		case models.OpComplete:
			summary.Completed++
		case models.OpTentativelyComplete:
			summary.Tentative++
		case models.OpNoOp:
			summary.NoOps++
		}
	}
}

// dryRunResults pretends every op applied so the summary reflects what a
// real run would have done.
func dryRunResults(ops []models.ReconciliationOp) []models.OpResult {
	out := make([]models.OpResult, len(ops))
	for i, op := range ops {
		out[i] = models.OpResult{Op: op, Applied: true}
	}
	return out
}
