package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	sqlCreateMemory = `
        CREATE TABLE IF NOT EXISTS memory (
            session_id TEXT NOT NULL,
            key TEXT NOT NULL,
            value TEXT NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (session_id, key)
        );`
	sqlCreateTaskHistory = `
        CREATE TABLE IF NOT EXISTS task_history (
            id UUID PRIMARY KEY,
            session_id TEXT NOT NULL,
            task TEXT NOT NULL,
            urls TEXT[] NOT NULL,
            result JSONB NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        );
        CREATE INDEX IF NOT EXISTS task_history_session_created_idx ON task_history (session_id, created_at DESC);`

	sqlUpsertMemory = `
        INSERT INTO memory (session_id, key, value, updated_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (session_id, key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = EXCLUDED.updated_at;`
	sqlGetMemory    = `SELECT value, updated_at FROM memory WHERE session_id = $1 AND key = $2;`
	sqlListMemory   = `SELECT key, value, updated_at FROM memory WHERE session_id = $1 ORDER BY updated_at DESC, key ASC;`
	sqlDeleteMemory = `DELETE FROM memory WHERE session_id = $1 AND key = $2;`

	sqlInsertTask = `
        INSERT INTO task_history (id, session_id, task, urls, result, created_at)
        VALUES ($1, $2, $3, $4, $5, $6);`
	sqlListTasks = `
        SELECT id, task, urls, result, created_at FROM task_history
        WHERE session_id = $1
        ORDER BY created_at DESC
        LIMIT $2;`
)

// PostgresBackend stores records in PostgreSQL.
type PostgresBackend struct {
	pool DBPool
	log  *zap.Logger
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgres creates a backend and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresBackend, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresBackend{pool: pool, log: logger.Named("store.postgres")}, nil
}

// EnsureSchema creates the tables when they do not exist.
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateMemory, sqlCreateTaskHistory} {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	p.log.Debug("Schema ensured.")
	return nil
}

func (p *PostgresBackend) Put(ctx context.Context, rec Record) error {
	if _, err := p.pool.Exec(ctx, sqlUpsertMemory, rec.SessionID, rec.Key, rec.Value, rec.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert memory: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Get(ctx context.Context, sessionID, key string) (Record, bool, error) {
	rec := Record{SessionID: sessionID, Key: key}
	err := p.pool.QueryRow(ctx, sqlGetMemory, sessionID, key).Scan(&rec.Value, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to query memory: %w", err)
	}
	return rec, true, nil
}

func (p *PostgresBackend) List(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := p.pool.Query(ctx, sqlListMemory, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{SessionID: sessionID}
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory rows: %w", err)
	}
	return out, nil
}

func (p *PostgresBackend) Delete(ctx context.Context, sessionID, key string) error {
	tag, err := p.pool.Exec(ctx, sqlDeleteMemory, sessionID, key)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresBackend) AppendTask(ctx context.Context, rec schemas.TaskRecord) error {
	_, err := p.pool.Exec(ctx, sqlInsertTask, rec.ID, rec.SessionID, rec.Task, rec.URLs, string(rec.Result), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert task history: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Tasks(ctx context.Context, sessionID string, limit int) ([]schemas.TaskRecord, error) {
	rows, err := p.pool.Query(ctx, sqlListTasks, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var out []schemas.TaskRecord
	for rows.Next() {
		var (
			rec       = schemas.TaskRecord{SessionID: sessionID}
			result    []byte
			createdAt time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Task, &rec.URLs, &result, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		rec.Result = result
		rec.CreatedAt = createdAt
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
