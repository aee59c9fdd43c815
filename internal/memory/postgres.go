package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend persists session snapshots in PostgreSQL as JSONB documents.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresBackend{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS voice_sessions (
			session_id TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_voice_sessions_updated ON voice_sessions (updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	var payload []byte
	err := b.pool.QueryRow(ctx,
		`SELECT payload FROM voice_sessions WHERE session_id = $1`, sessionID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(payload)
}

func (b *PostgresBackend) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx,
		`INSERT INTO voice_sessions (session_id, payload, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (session_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		sessionID,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Delete(ctx context.Context, sessionID string) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM voice_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func (b *PostgresBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT session_id FROM voice_sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
