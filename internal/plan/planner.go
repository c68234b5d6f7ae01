// Package plan turns dedupe survivors and completion verdicts into an
// ordered batch of store operations. The plan is pure data: building it
// performs no I/O, and applying it belongs to the store.
package plan

import (
	"github.com/todoharvest/internal/completion"
	"github.com/todoharvest/pkg/models"
)

// Build emits exactly one op per existing task that received a verdict, then
// one create per surviving candidate. Ops touching existing tasks come first
// so the store's read-modify-write window on a row stays short; within each
// group the input order is preserved.
func Build(
	existing []models.ExistingTask,
	verdicts map[string]completion.Verdict,
	candidates []models.CandidateTodo,
	extraSources map[string][]models.SourceRef,
) []models.ReconciliationOp {
	ops := make([]models.ReconciliationOp, 0, len(verdicts)+len(candidates))

	for _, task := range existing {
		verdict, ok := verdicts[task.ID]
		if !ok {
			continue
		}

		op := models.ReconciliationOp{
			TaskID:       task.ID,
			Confidence:   verdict.Confidence,
			ExtraSources: extraSources[task.ID],
		}
		switch verdict.Kind {
		case completion.VerdictDone:
			op.Kind = models.OpComplete
		case completion.VerdictTentative:
			op.Kind = models.OpTentativelyComplete
		default:
			op.Kind = models.OpNoOp
		}
		ops = append(ops, op)
	}

	for i := range candidates {
		ops = append(ops, models.ReconciliationOp{
			Kind:      models.OpCreate,
			Candidate: &candidates[i],
		})
	}

	return ops
}
