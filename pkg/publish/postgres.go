package publish

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/uhyunpark/tradepost/pkg/app/core/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS fills (
	instrument     TEXT        NOT NULL,
	seq            BIGINT      NOT NULL,
	id             UUID        NOT NULL,
	taker_order_id TEXT        NOT NULL,
	maker_order_id TEXT        NOT NULL,
	taker_side     TEXT        NOT NULL,
	price_ticks    BIGINT      NOT NULL,
	qty            BIGINT      NOT NULL,
	executed_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (instrument, seq)
);
CREATE TABLE IF NOT EXISTS orders (
	id          TEXT        PRIMARY KEY,
	instrument  TEXT        NOT NULL,
	owner       TEXT        NOT NULL,
	side        TEXT        NOT NULL,
	type        TEXT        NOT NULL,
	tif         TEXT        NOT NULL,
	qty         BIGINT      NOT NULL,
	filled      BIGINT      NOT NULL,
	price_ticks BIGINT,
	status      TEXT        NOT NULL,
	reason      TEXT        NOT NULL,
	seq         BIGINT      NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);`

const insertFill = `
INSERT INTO fills (instrument, seq, id, taker_order_id, maker_order_id, taker_side, price_ticks, qty, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (instrument, seq) DO NOTHING`

// Orders only move forward, so an older snapshot never overwrites a newer one.
const upsertOrder = `
INSERT INTO orders (id, instrument, owner, side, type, tif, qty, filled, price_ticks, status, reason, seq, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	filled = EXCLUDED.filled,
	status = EXCLUDED.status,
	reason = EXCLUDED.reason,
	updated_at = EXCLUDED.updated_at
WHERE orders.updated_at <= EXCLUDED.updated_at`

// PostgresSink mirrors fills and order states into Postgres for reporting.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, url string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (p *PostgresSink) Name() string { return "postgres" }

// Publish writes a batch in one transaction. Replays are harmless.
func (p *PostgresSink) Publish(ctx context.Context, b engine.Batch) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, postgresBatch(b))
		if err := br.Close(); err != nil {
			return fmt.Errorf("write batch for %s: %w", b.Instrument, err)
		}
		return nil
	})
}

func postgresBatch(b engine.Batch) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, f := range b.Fills {
		batch.Queue(insertFill,
			f.Instrument, int64(f.Seq), f.ID, f.TakerOrderID, f.MakerOrderID,
			f.TakerSide.String(), f.Price, f.Qty, f.Timestamp)
	}
	for _, o := range b.Orders {
		var price *int64
		if o.LimitPrice.Set {
			t := o.LimitPrice.Ticks
			price = &t
		}
		batch.Queue(upsertOrder,
			o.ID, o.Instrument, o.Owner, o.Side.String(), o.Type.String(), o.TIF.String(),
			o.Qty, o.Filled, price, o.Status.String(), o.Reason.String(), int64(o.Seq), o.UpdatedAt)
	}
	return batch
}

func (p *PostgresSink) Close() { p.pool.Close() }
