package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/todoharvest/internal/fingerprint"
	"github.com/todoharvest/pkg/models"
)

// PostgresStore persists tasks in a single todos table. Sources are kept as
// jsonb so cross-source attribution survives merges without a join table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS todos (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    task        TEXT NOT NULL,
    assignee    TEXT NOT NULL DEFAULT '',
    due_date    DATE,
    priority    TEXT NOT NULL DEFAULT 'medium',
    category    TEXT[] NOT NULL DEFAULT '{}',
    status      TEXT NOT NULL DEFAULT 'open',
    fingerprint TEXT NOT NULL,
    confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
    sources     JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS todos_status_idx ON todos (status);
CREATE INDEX IF NOT EXISTS todos_fingerprint_idx ON todos (fingerprint);
`

// Migrate creates the todos table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate todos schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOpenTasks(ctx context.Context) ([]models.ExistingTask, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id::text, task, assignee, coalesce(to_char(due_date, 'YYYY-MM-DD'), ''),
               priority, category, status, fingerprint, created_at
        FROM todos
        WHERE status IN ('open', 'in_progress')
        ORDER BY created_at, id
    `)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()

	var out []models.ExistingTask
	for rows.Next() {
		var task models.ExistingTask
		if err := rows.Scan(&task.ID, &task.Task, &task.Assignee, &task.DueDate,
			&task.Priority, &task.Category, &task.Status, &task.Fingerprint, &task.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		if task.Fingerprint == "" {
			task.Fingerprint = fingerprint.Fingerprint(task.Task)
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ApplyOps(ctx context.Context, ops []models.ReconciliationOp) ([]models.OpResult, error) {
	results := make([]models.OpResult, 0, len(ops))
	for _, op := range ops {
		results = append(results, s.apply(ctx, op))
	}
	return results, nil
}

func (s *PostgresStore) apply(ctx context.Context, op models.ReconciliationOp) models.OpResult {
	result := models.OpResult{Op: op}

	var err error
	switch op.Kind {
	case models.OpCreate:
		err = s.create(ctx, op)
	case models.OpComplete:
		err = s.setStatus(ctx, op, models.StatusDone)
	case models.OpTentativelyComplete:
		err = s.setStatus(ctx, op, models.StatusTentativelyDone)
	case models.OpNoOp:
		err = s.attachSources(ctx, op)
	default:
		err = fmt.Errorf("unknown op kind %q", op.Kind)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Applied = true
	return result
}

func (s *PostgresStore) create(ctx context.Context, op models.ReconciliationOp) error {
	if op.Candidate == nil {
		return errors.New("create op without candidate")
	}
	c := op.Candidate

	sources, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	fp := c.Fingerprint
	if fp == "" {
		fp = fingerprint.Fingerprint(c.Task)
	}

	_, err = s.pool.Exec(ctx, `
        INSERT INTO todos (task, assignee, due_date, priority, category, status, fingerprint, confidence, sources)
        VALUES ($1, $2, nullif($3, '')::date, $4, $5, 'open', $6, $7, $8)
    `, c.Task, c.Assignee, c.DueDate, string(c.Priority), ensureNotNil(c.Category), fp, c.Confidence, sources)
	if err != nil {
		return fmt.Errorf("insert todo: %w", err)
	}
	return nil
}

func (s *PostgresStore) setStatus(ctx context.Context, op models.ReconciliationOp, status models.TaskStatus) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE todos
        SET status = $1, confidence = $2, sources = sources || $3::jsonb, updated_at = now()
        WHERE id = $4::uuid
    `, string(status), op.Confidence, mustJSON(op.ExtraSources), op.TaskID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) attachSources(ctx context.Context, op models.ReconciliationOp) error {
	if len(op.ExtraSources) == 0 {
		// still verify the id so the planner invariant is checkable
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT true FROM todos WHERE id = $1::uuid`, op.TaskID).Scan(&exists)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	tag, err := s.pool.Exec(ctx, `
        UPDATE todos
        SET sources = sources || $1::jsonb, updated_at = now()
        WHERE id = $2::uuid
    `, mustJSON(op.ExtraSources), op.TaskID)
	if err != nil {
		return fmt.Errorf("attach sources: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func ensureNotNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func mustJSON(refs []models.SourceRef) []byte {
	if refs == nil {
		refs = []models.SourceRef{}
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return []byte("[]")
	}
	return b
}
