package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles query_executions PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists one execution. Redelivered events are ignored.
func (r *Repository) Insert(ctx context.Context, e *Execution) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO query_executions
		   (id, request_id, session_id, query, short_circuit, category, sources, status, error, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.RequestID, e.SessionID, e.Query, e.ShortCircuit, e.Category, e.Sources,
		e.Status, e.Error, e.DurationMS, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting query execution: %w", err)
	}
	return nil
}

// ListBySession returns one page of executions for a session, newest first,
// plus the total count.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, params ListParams) ([]Execution, int64, error) {
	params = params.normalized()

	conditions := []string{"session_id = $1"}
	args := []any{sessionID}
	argIdx := 2

	if params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, params.Status)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM query_executions WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting query executions: %w", err)
	}

	dataQuery := fmt.Sprintf(
		`SELECT id, request_id, session_id, query, short_circuit, category, sources, status, error, duration_ms, created_at
		 FROM query_executions WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, params.offset())

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying query executions: %w", err)
	}
	defer rows.Close()

	out := []Execution{}
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.RequestID, &e.SessionID, &e.Query, &e.ShortCircuit, &e.Category,
			&e.Sources, &e.Status, &e.Error, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning query execution: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating query executions: %w", err)
	}
	return out, total, nil
}
