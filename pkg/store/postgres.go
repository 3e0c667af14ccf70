package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chicogong/ytagents/pkg/schemas"
)

const workflowsDDL = `CREATE TABLE IF NOT EXISTS workflows (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
)`

// PostgresStore keeps workflows as JSONB documents for multi-process deployments
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and ensures the workflows table exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, workflowsDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate workflows table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) CreateWorkflow(ctx context.Context, w *schemas.Workflow) error {
	if w.ID == "" {
		return ErrInvalidWorkflowID
	}
	doc, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO workflows (id, topic, created_at, doc) VALUES ($1, $2, $3, $4)`,
		w.ID, w.Topic, w.CreatedAt, doc)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrWorkflowExists
	}
	return err
}

func (p *PostgresStore) GetWorkflow(ctx context.Context, id string) (*schemas.Workflow, error) {
	if id == "" {
		return nil, ErrInvalidWorkflowID
	}
	return scanWorkflow(p.pool.QueryRow(ctx, `SELECT doc FROM workflows WHERE id = $1`, id))
}

// Mutate locks the row for the duration of fn
func (p *PostgresStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*schemas.Workflow, error) {
	if id == "" {
		return nil, ErrInvalidWorkflowID
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	w, err := scanWorkflow(tx.QueryRow(ctx, `SELECT doc FROM workflows WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := fn(w); err != nil {
		return nil, err
	}
	doc, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE workflows SET topic = $2, doc = $3 WHERE id = $1`, id, w.Topic, doc); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (p *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidWorkflowID
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (p *PostgresStore) ListWorkflows(ctx context.Context, filter *ListFilter) ([]*schemas.Workflow, error) {
	rows, err := p.pool.Query(ctx, `SELECT doc FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*schemas.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return applyFilter(all, filter), nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func scanWorkflow(row pgx.Row) (*schemas.Workflow, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	var w schemas.Workflow
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	return &w, nil
}
