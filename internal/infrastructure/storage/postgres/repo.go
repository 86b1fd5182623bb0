package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

// Repo keeps tick and alert fire history for offline analysis.
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ticks (
  id BIGSERIAL PRIMARY KEY,
  ts_ms BIGINT NOT NULL,
  symbol TEXT NOT NULL,
  price DOUBLE PRECISION,
  delta DOUBLE PRECISION,
  theta DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol_ts ON ticks(symbol, ts_ms);

CREATE TABLE IF NOT EXISTS alert_events (
  id TEXT PRIMARY KEY,
  alert_id BIGINT NOT NULL,
  chat_id BIGINT NOT NULL,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  threshold DOUBLE PRECISION NOT NULL,
  price DOUBLE PRECISION NOT NULL,
  fired_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_events_ts ON alert_events(fired_ms);
`)
	return err
}

func (r *Repo) UpsertPrice(ctx context.Context, t model.Tick) error {
	if !t.HasPrice() && !t.HasGreeks() {
		return nil
	}
	price := sql.NullFloat64{Float64: t.Price, Valid: t.HasPrice()}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ticks(ts_ms, symbol, price, delta, theta) VALUES($1, $2, $3, $4, $5)`,
		t.ObservedAt.UnixMilli(), t.Symbol, price, nullFloat(t.Delta), nullFloat(t.Theta))
	return err
}

func (r *Repo) InsertAlertEvent(ctx context.Context, ev *model.AlertEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_events(id, alert_id, chat_id, symbol, direction, threshold, price, fired_ms)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.AlertID, ev.ChatID, ev.Symbol, string(ev.Direction), ev.Threshold, ev.Price, ev.FiredAt.UnixMilli())
	return err
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

var _ port.PriceSink = (*Repo)(nil)
