package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onnwee/hundy-bot/db"
)

// PostgresBackend stores each document as one JSONB row of the documents
// table, guarded by a version column.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend migrates the schema and returns a backend over database.
func NewPostgresBackend(ctx context.Context, database *sql.DB) (*PostgresBackend, error) {
	if err := db.Migrate(ctx, database); err != nil {
		return nil, err
	}
	return &PostgresBackend{db: database}, nil
}

func (p *PostgresBackend) Load(ctx context.Context, name string) ([]byte, int64, error) {
	var body string
	var version int64
	err := p.db.QueryRowContext(ctx, `SELECT body::text, version FROM documents WHERE name=$1`, name).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return []byte(body), version, nil
}

func (p *PostgresBackend) Swap(ctx context.Context, name string, data []byte, expect int64) (int64, error) {
	var res sql.Result
	var err error
	if expect == 0 {
		res, err = p.db.ExecContext(ctx,
			`INSERT INTO documents (name, body, version) VALUES ($1, $2::jsonb, 1) ON CONFLICT (name) DO NOTHING`,
			name, string(data))
	} else {
		res, err = p.db.ExecContext(ctx,
			`UPDATE documents SET body=$2::jsonb, version=version+1, updated_at=NOW() WHERE name=$1 AND version=$3`,
			name, string(data), expect)
	}
	if err != nil {
		return 0, fmt.Errorf("swap %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrConflict
	}
	return expect + 1, nil
}

func (p *PostgresBackend) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresBackend) Close() error { return p.db.Close() }
