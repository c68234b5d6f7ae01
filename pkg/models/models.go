// Package models contains the shared data structures passed between the
// pipeline stages and the external task store.
package models

import (
	"time"
)

// Source identifies the platform a piece of content came from.
type Source string

const (
	SourceChat      Source = "chat"
	SourceEmail     Source = "email"
	SourceMeeting   Source = "meeting"
	SourceStoreNote Source = "store-note"
)

// Priority is the urgency level assigned to a todo.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ValidPriority reports whether p is one of the known priority levels.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Categories is the fixed tag vocabulary for extracted todos.
var Categories = []string{
	"follow-up", "review", "meeting", "finance", "hr", "technical", "communication", "other",
}

// ValidCategory reports whether c is part of the fixed vocabulary.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ContentUnit is one normalized piece of source material. Units are built
// fresh each run from collaborator data and never persisted.
type ContentUnit struct {
	Text         string    `json:"text"`
	Source       Source    `json:"source"`
	SourceID     string    `json:"source_id"`
	Link         string    `json:"link,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// SourceRef is a pointer back to the content a todo was extracted from.
type SourceRef struct {
	Source   Source `json:"source"`
	SourceID string `json:"source_id"`
	Link     string `json:"link,omitempty"`
}

// CandidateTodo is a todo extracted from content in one run, not yet
// reconciled against the store.
type CandidateTodo struct {
	Task        string      `json:"task"`
	Assignee    string      `json:"assignee,omitempty"`
	DueDate     string      `json:"due_date,omitempty"` // YYYY-MM-DD
	Priority    Priority    `json:"priority"`
	Category    []string    `json:"category,omitempty"`
	Confidence  float64     `json:"confidence"`
	Sources     []SourceRef `json:"sources"`
	Fingerprint string      `json:"fingerprint"`
}

// TaskStatus is the lifecycle state of a task in the external store.
type TaskStatus string

const (
	StatusOpen            TaskStatus = "open"
	StatusInProgress      TaskStatus = "in_progress"
	StatusDone            TaskStatus = "done"
	StatusTentativelyDone TaskStatus = "tentatively_done"
)

// ExistingTask is a read-only snapshot of a task already present in the
// external store at the start of a run. The ID is owned by the store; the
// pipeline only references it in reconciliation ops.
type ExistingTask struct {
	ID          string     `json:"id"`
	Task        string     `json:"task"`
	Assignee    string     `json:"assignee,omitempty"`
	DueDate     string     `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority"`
	Category    []string   `json:"category,omitempty"`
	Status      TaskStatus `json:"status"`
	Fingerprint string     `json:"fingerprint"`
	CreatedAt   time.Time  `json:"created_at"`
}

// OpKind tags the variant of a reconciliation op.
type OpKind string

const (
	OpCreate              OpKind = "create"
	OpComplete            OpKind = "complete"
	OpTentativelyComplete OpKind = "tentatively_complete"
	OpNoOp                OpKind = "noop"
)

// ReconciliationOp is one unit of intended mutation against the external
// store, computed but not yet applied. Exactly one op references each
// existing task considered in a run, plus one OpCreate per surviving
// candidate.
type ReconciliationOp struct {
	Kind       OpKind         `json:"kind"`
	TaskID     string         `json:"task_id,omitempty"`   // complete / tentative / noop
	Candidate  *CandidateTodo `json:"candidate,omitempty"` // create only
	Confidence float64        `json:"confidence"`
	// ExtraSources carries cross-source attribution merged onto an existing
	// task during dedupe. It never creates a new store row.
	ExtraSources []SourceRef `json:"extra_sources,omitempty"`
}

// OpResult is the per-op outcome reported by the store collaborator.
type OpResult struct {
	Op      ReconciliationOp `json:"op"`
	Applied bool             `json:"applied"`
	Error   string           `json:"error,omitempty"`
}

// RunSummary is the machine-readable outcome of one pipeline run. It is
// handed to the notification collaborator; the pipeline does not format it.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Created    int           `json:"created"`
	Duplicates int           `json:"duplicates"`
	Completed  int           `json:"completed"`
	Tentative  int           `json:"tentative"`
	NoOps      int           `json:"noops"`
	FailedOps  int           `json:"failed_ops"`
	Warnings   []string      `json:"warnings,omitempty"`
}
