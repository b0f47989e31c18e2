package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidwall/gjson"
)

// Schema creates the tables PostgresSource reads. Column names match the
// document field names so row_to_json yields the same documents as the
// other sources.
const Schema = `
CREATE TABLE IF NOT EXISTS students (
	"_id"       TEXT PRIMARY KEY,
	"firstName" TEXT NOT NULL,
	"lastName"  TEXT
);
CREATE TABLE IF NOT EXISTS subjects (
	"_id"  TEXT PRIMARY KEY,
	"name" TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS class (
	"_id"       TEXT PRIMARY KEY,
	"className" TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS marks (
	"_id"      BIGSERIAL PRIMARY KEY,
	"student"  TEXT,
	"subject"  TEXT,
	"class"    TEXT,
	"examType" TEXT,
	"term"     TEXT,
	"year"     INTEGER,
	"marks"    DOUBLE PRECISION
);
`

// PostgresSource reads documents from one table per Kind. Rows are returned in
// primary key order so batch order is stable across runs.
type PostgresSource struct {
	mu   sync.RWMutex
	pool *pgxpool.Pool
}

// NewPostgresSource connects to the database at databaseURL and verifies the
// connection.
func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres: database URL cannot be empty")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse database URL: %w", err)
	}

	if poolConfig.MaxConns == 0 {
		poolConfig.MaxConns = 10
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	return &PostgresSource{pool: pool}, nil
}

func (p *PostgresSource) Name() string { return "postgres" }

// EnsureSchema creates the record tables when they do not exist.
func (p *PostgresSource) EnsureSchema(ctx context.Context) error {
	pool, err := p.acquire()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

// Find implements Source.
func (p *PostgresSource) Find(ctx context.Context, kind Kind) ([]gjson.Result, error) {
	docs, err := p.find(ctx, kind)
	if err != nil {
		return nil, &DataSourceError{Source: p.Name(), Kind: kind.Name, Op: "find", Err: err}
	}
	return docs, nil
}

func (p *PostgresSource) find(ctx context.Context, kind Kind) ([]gjson.Result, error) {
	pool, err := p.acquire()
	if err != nil {
		return nil, err
	}

	table := pgx.Identifier{kind.Collection}.Sanitize()
	query := fmt.Sprintf(`SELECT row_to_json(t)::text FROM %s t ORDER BY t."_id"`, table)

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var docs []gjson.Result
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if !gjson.Valid(raw) {
			return nil, fmt.Errorf("row %d of %s is not valid JSON", len(docs), table)
		}
		docs = append(docs, gjson.Parse(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}

	return docs, nil
}

func (p *PostgresSource) acquire() (*pgxpool.Pool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil {
		return nil, errors.New("postgres: connection pool is closed")
	}
	return p.pool, nil
}

// Close closes the connection pool. It is safe to call multiple times.
func (p *PostgresSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}
