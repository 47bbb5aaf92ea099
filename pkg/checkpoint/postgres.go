package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend stores the record as one jsonb row of ingest_checkpoints.
// Save is a single upsert statement, so it is atomic.
type PostgresBackend struct {
	conn pgConn
	name string
}

func NewPostgresBackend(conn pgConn, name string) *PostgresBackend {
	if name == "" {
		name = "default"
	}
	return &PostgresBackend{conn: conn, name: name}
}

func (p *PostgresBackend) Load(ctx context.Context) (Record, error) {
	var data []byte
	err := p.conn.QueryRow(ctx, loadCheckpointSQL, p.name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode checkpoint %q: %w", p.name, err)
	}
	return rec, nil
}

func (p *PostgresBackend) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = p.conn.Exec(ctx, saveCheckpointSQL, p.name, data)
	return err
}

func (p *PostgresBackend) Delete(ctx context.Context) error {
	tag, err := p.conn.Exec(ctx, deleteCheckpointSQL, p.name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const loadCheckpointSQL = `
SELECT record FROM ingest_checkpoints WHERE name = $1;
`

const saveCheckpointSQL = `
INSERT INTO ingest_checkpoints (name, record, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (name) DO UPDATE
SET record     = EXCLUDED.record,
    updated_at = EXCLUDED.updated_at;
`

const deleteCheckpointSQL = `
DELETE FROM ingest_checkpoints WHERE name = $1;
`
