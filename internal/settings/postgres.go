package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema is the DDL for the settings table. [OpenPostgres] applies
// it automatically.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS app_settings (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// DB is the database interface used by [PostgresBackend]. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresBackend stores documents as JSONB rows.
type PostgresBackend struct {
	db    DB
	close func()
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend wraps an existing connection or pool. The caller owns
// db and must apply [PostgresSchema] (see [PostgresBackend.Migrate]).
func NewPostgresBackend(db DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

// OpenPostgres connects to dsn, verifies the connection and ensures the
// schema exists. Close releases the pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("settings: postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("settings: postgres ping: %w", err)
	}
	b := &PostgresBackend{db: pool, close: pool.Close}
	if err := b.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// Migrate applies [PostgresSchema].
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("settings: postgres migrate: %w", err)
	}
	return nil
}

// Load implements [Backend].
func (b *PostgresBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: postgres load %s: %w", key, err)
	}
	return value, nil
}

// Save implements [Backend].
func (b *PostgresBackend) Save(ctx context.Context, key string, data []byte) error {
	const query = `
		INSERT INTO app_settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := b.db.Exec(ctx, query, key, data); err != nil {
		return fmt.Errorf("settings: postgres save %s: %w", key, err)
	}
	return nil
}

// Close implements [Backend]. It only closes pools opened by [OpenPostgres].
func (b *PostgresBackend) Close() error {
	if b.close != nil {
		b.close()
	}
	return nil
}
