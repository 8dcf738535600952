package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresGateway keeps the whole state document in a single-row table. The
// write pattern stays the full-state overwrite of the file gateway; Postgres
// only buys crash safety and shared access to the file's contents.
type PostgresGateway struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresGateway, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS galley_state (
			id         INT PRIMARY KEY CHECK (id = 1),
			state      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	return &PostgresGateway{db: db}, nil
}

func (g *PostgresGateway) Load(ctx context.Context) (*State, error) {
	var raw []byte
	err := g.db.QueryRowContext(ctx, `SELECT state FROM galley_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &state, nil
}

func (g *PostgresGateway) Save(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	const upsert = `
		INSERT INTO galley_state (id, state, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`
	if _, err := g.db.ExecContext(ctx, upsert, raw); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *PostgresGateway) Close() error {
	return g.db.Close()
}
