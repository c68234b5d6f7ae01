// Package dedupe matches freshly extracted candidates against the existing
// open-task snapshot and against each other, so one underlying task never
// produces two store rows.
package dedupe

import (
	"github.com/todoharvest/internal/config"
	"github.com/todoharvest/internal/fingerprint"
	"github.com/todoharvest/internal/logging"
	"github.com/todoharvest/pkg/models"
)

// Result is the outcome of one dedupe pass. Survivors are the candidates that
// matched nothing existing and nothing earlier in the batch. ExtraSources
// carries the attributions of candidates that duplicated an existing task,
// keyed by that task's store id, for the planner to attach rather than create.
type Result struct {
	Survivors    []models.CandidateTodo
	ExtraSources map[string][]models.SourceRef
	Duplicates   int
}

// Engine holds the similarity knobs. Matching is two-stage: exact fingerprint
// equality first, then token-overlap similarity for near-duplicates that
// tokenize differently ("send the report" vs "send report to finance").
type Engine struct {
	similarity float64
	simhashMax int
}

func New(cfg *config.Config) *Engine {
	return &Engine{
		similarity: cfg.Thresholds.Similarity,
		simhashMax: cfg.Thresholds.SimhashMaxDistance,
	}
}

// indexed pre-computes the match keys for one existing task.
type indexed struct {
	id      string
	tokens  []string
	simhash uint64
}

// Dedupe runs candidates through both stages. Existing tasks that are already
// done are ignored; a candidate may legitimately re-open work that was
// finished before.
func (e *Engine) Dedupe(candidates []models.CandidateTodo, existing []models.ExistingTask) Result {
	result := Result{ExtraSources: make(map[string][]models.SourceRef)}
	logger := logging.GetCurrentLogger()

	byFingerprint := make(map[string]string, len(existing))
	var index []indexed
	for _, task := range existing {
		if task.Status != models.StatusOpen && task.Status != models.StatusInProgress {
			continue
		}
		fp := task.Fingerprint
		if fp == "" {
			fp = fingerprint.Fingerprint(task.Task)
		}
		if _, ok := byFingerprint[fp]; !ok {
			byFingerprint[fp] = task.ID
		}
		index = append(index, indexed{
			id:      task.ID,
			tokens:  fingerprint.Tokens(task.Task),
			simhash: fingerprint.Simhash64(task.Task),
		})
	}

	// stage one: against the existing snapshot
	var fresh []models.CandidateTodo
	for _, candidate := range candidates {
		if id, ok := byFingerprint[candidate.Fingerprint]; ok {
			result.ExtraSources[id] = mergeSourceRefs(result.ExtraSources[id], candidate.Sources)
			result.Duplicates++
			logger.Log("Dedupe: %q matches existing task %s by fingerprint", candidate.Task, id)
			continue
		}
		if id, ok := e.findSimilar(candidate, index); ok {
			result.ExtraSources[id] = mergeSourceRefs(result.ExtraSources[id], candidate.Sources)
			result.Duplicates++
			logger.Log("Dedupe: %q near-matches existing task %s", candidate.Task, id)
			continue
		}
		fresh = append(fresh, candidate)
	}

	// stage two: within the batch itself
	result.Survivors = e.dedupeBatch(fresh, &result.Duplicates)

	logger.Log("Dedupe: %d candidates in, %d survivors, %d duplicates",
		len(candidates), len(result.Survivors), result.Duplicates)
	return result
}

// findSimilar returns the id of the first existing task whose text is close
// enough to the candidate's, by token Jaccard or simhash Hamming distance.
func (e *Engine) findSimilar(candidate models.CandidateTodo, index []indexed) (string, bool) {
	tokens := fingerprint.Tokens(candidate.Task)
	hash := fingerprint.Simhash64(candidate.Task)

	for _, entry := range index {
		if fingerprint.Jaccard(tokens, entry.tokens) >= e.similarity {
			return entry.id, true
		}
		// simhash only carries signal once there are enough tokens to
		// spread over the bit vector; short texts rely on Jaccard alone
		if len(tokens) >= minSimhashTokens && len(entry.tokens) >= minSimhashTokens &&
			fingerprint.Hamming(hash, entry.simhash) <= e.simhashMax {
			return entry.id, true
		}
	}
	return "", false
}

const minSimhashTokens = 8

// dedupeBatch collapses near-identical candidates from the same run. The same
// commitment often surfaces on two platforms at once (said in chat, repeated
// in a recap email), and both attributions belong on the one surviving row.
func (e *Engine) dedupeBatch(candidates []models.CandidateTodo, duplicates *int) []models.CandidateTodo {
	var survivors []models.CandidateTodo

	for _, candidate := range candidates {
		matched := false
		for i := range survivors {
			if !e.matches(candidate, survivors[i]) {
				continue
			}
			survivors[i] = mergeCandidates(survivors[i], candidate)
			*duplicates++
			matched = true
			break
		}
		if !matched {
			survivors = append(survivors, candidate)
		}
	}
	return survivors
}

func (e *Engine) matches(a, b models.CandidateTodo) bool {
	if a.Fingerprint == b.Fingerprint {
		return true
	}
	aTokens := fingerprint.Tokens(a.Task)
	bTokens := fingerprint.Tokens(b.Task)
	if fingerprint.Jaccard(aTokens, bTokens) >= e.similarity {
		return true
	}
	if len(aTokens) < minSimhashTokens || len(bTokens) < minSimhashTokens {
		return false
	}
	return fingerprint.Hamming(fingerprint.Simhash64(a.Task), fingerprint.Simhash64(b.Task)) <= e.simhashMax
}

// mergeCandidates folds b into a. The higher-confidence side contributes the
// descriptive fields; sources and categories are unions.
func mergeCandidates(a, b models.CandidateTodo) models.CandidateTodo {
	winner, loser := a, b
	if b.Confidence > a.Confidence {
		winner, loser = b, a
	}

	merged := winner
	merged.Sources = mergeSourceRefs(winner.Sources, loser.Sources)
	merged.Category = mergeStrings(winner.Category, loser.Category)
	return merged
}

// mergeSourceRefs appends refs from add that are not already present, keyed
// by (source, source_id). Order of first appearance is preserved.
func mergeSourceRefs(base []models.SourceRef, add []models.SourceRef) []models.SourceRef {
	seen := make(map[string]bool, len(base))
	for _, ref := range base {
		seen[string(ref.Source)+"\x00"+ref.SourceID] = true
	}

	out := base
	for _, ref := range add {
		key := string(ref.Source) + "\x00" + ref.SourceID
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ref)
	}
	return out
}

func mergeStrings(base []string, add []string) []string {
	seen := make(map[string]bool, len(base))
	for _, s := range base {
		seen[s] = true
	}

	out := base
	for _, s := range add {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
