package historian

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/tablesync/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_records (
	id          BIGSERIAL PRIMARY KEY,
	room_id     TEXT        NOT NULL,
	user_id     TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	version     BIGINT      NOT NULL DEFAULT 0,
	event_id    BIGINT      NOT NULL DEFAULT 0,
	payload     JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS sync_records_room_idx ON sync_records (room_id, recorded_at);
`

// Connect opens a pool for url and pings it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return pool, nil
}

// PostgresSink writes batches into the sync_records table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// EnsureSchema creates the table when missing.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// Write inserts every record in one transaction.
func (p *PostgresSink) Write(ctx context.Context, records []models.SyncRecord) error {
	return beginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertRecordTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRecordTx: %w", err)
			}
		}
		return nil
	})
}

func insertRecordTx(ctx context.Context, tx pgx.Tx, rec models.SyncRecord) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	q := `
		INSERT INTO sync_records (
			room_id, user_id, kind, version, event_id, payload, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, q, args...)
	return err
}

// recordArgs maps a record onto the insert's positional arguments.
func recordArgs(rec models.SyncRecord) ([]interface{}, error) {
	var payload []byte
	if rec.Payload != nil {
		var err error
		if payload, err = json.Marshal(rec.Payload); err != nil {
			return nil, err
		}
	}
	return []interface{}{
		rec.RoomID,
		rec.UserID,
		string(rec.Kind),
		rec.Version,
		rec.EventID,
		payload,
		time.UnixMilli(rec.Timestamp).UTC(),
	}, nil
}

// beginTxFunc starts a transaction, runs f, and commits or rolls back.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}
