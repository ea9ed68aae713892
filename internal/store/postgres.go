package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS tycoon_state (
	bucket TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSnapshotter persists state buckets as JSONB rows. The pool is owned
// by the caller.
type PostgresSnapshotter struct {
	pool    *pgxpool.Pool
	digests digestCache
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresSnapshotter, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	return &PostgresSnapshotter{pool: pool}, nil
}

func (p *PostgresSnapshotter) Load(ctx context.Context) (*State, error) {
	rows, err := p.pool.Query(ctx, `SELECT bucket, payload::text FROM tycoon_state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()
	payloads := map[string][]byte{}
	for rows.Next() {
		var bucket, payload string
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = []byte(payload)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, nil
	}
	st, err := DecodeBuckets(payloads)
	if err != nil {
		return nil, err
	}
	// JSONB normalises payloads, so digests are taken from our own encoding.
	encoded, err := EncodeBuckets(st)
	if err != nil {
		return nil, err
	}
	fresh := digestCache{}
	p.digests.remember(fresh.changed(encoded))
	return st, nil
}

func (p *PostgresSnapshotter) Save(ctx context.Context, st *State, changed []string) error {
	if len(changed) == 0 {
		return nil
	}
	payloads, err := EncodeBuckets(st, changed...)
	if err != nil {
		return err
	}
	sums := p.digests.changed(payloads)
	if len(sums) == 0 {
		return nil
	}
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for name := range sums {
			batch.Queue(`
				INSERT INTO tycoon_state (bucket, payload, updated_at)
				VALUES ($1, $2::jsonb, now())
				ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
			`, name, string(payloads[name]))
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	p.digests.remember(sums)
	return nil
}

func (p *PostgresSnapshotter) Close() error { return nil }
