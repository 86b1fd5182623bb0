package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS quotes (
  symbol TEXT PRIMARY KEY,
  price REAL,
  delta REAL,
  theta REAL,
  updated_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  chat_id INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  threshold REAL NOT NULL,
  last_fired_ms INTEGER,
  bounced INTEGER NOT NULL DEFAULT 0,
  created_ms INTEGER NOT NULL,
  UNIQUE(chat_id, symbol, direction, threshold)
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);
CREATE INDEX IF NOT EXISTS idx_alerts_chat ON alerts(chat_id);

CREATE TABLE IF NOT EXISTS watchlist (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  chat_id INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  created_ms INTEGER NOT NULL,
  UNIQUE(chat_id, symbol)
);

CREATE TABLE IF NOT EXISTS accounts (
  user_id INTEGER PRIMARY KEY,
  api_key TEXT NOT NULL,
  secret_key TEXT NOT NULL,
  updated_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_events (
  id TEXT PRIMARY KEY,
  alert_id INTEGER NOT NULL,
  chat_id INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  direction TEXT NOT NULL,
  threshold REAL NOT NULL,
  price REAL NOT NULL,
  fired_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_events_ts ON alert_events(fired_ms);
`)
	return err
}

// UpsertPrice 合并最新报价：price 为空时保留旧值，greeks 独立更新
func (r *Repo) UpsertPrice(ctx context.Context, t model.Tick) error {
	if !t.HasPrice() && !t.HasGreeks() {
		return nil
	}
	price := sql.NullFloat64{Float64: t.Price, Valid: t.HasPrice()}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO quotes(symbol, price, delta, theta, updated_ms)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		price=COALESCE(excluded.price, quotes.price),
		delta=COALESCE(excluded.delta, quotes.delta),
		theta=COALESCE(excluded.theta, quotes.theta),
		updated_ms=excluded.updated_ms
	`, t.Symbol, price, nullFloat(t.Delta), nullFloat(t.Theta), t.ObservedAt.UnixMilli())
	return err
}

func (r *Repo) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	out := make(map[string]model.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}
	args := make([]any, len(symbols))
	for i, s := range symbols {
		args[i] = s
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol, price, delta, theta, updated_ms FROM quotes WHERE symbol IN (`+placeholders(len(symbols))+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q                   model.Quote
			price, delta, theta sql.NullFloat64
			ts                  int64
		)
		if err := rows.Scan(&q.Symbol, &price, &delta, &theta, &ts); err != nil {
			return nil, err
		}
		q.Price = price.Float64
		q.Delta = floatPtr(delta)
		q.Theta = floatPtr(theta)
		q.UpdatedAt = time.UnixMilli(ts)
		out[q.Symbol] = q
	}
	return out, rows.Err()
}

func (r *Repo) InsertAlertEvent(ctx context.Context, ev *model.AlertEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_events(id, alert_id, chat_id, symbol, direction, threshold, price, fired_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.AlertID, ev.ChatID, ev.Symbol, string(ev.Direction), ev.Threshold, ev.Price, ev.FiredAt.UnixMilli())
	return err
}

func (r *Repo) CreateAlert(ctx context.Context, a *model.Alert) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts(chat_id, symbol, direction, threshold, bounced, created_ms)
		VALUES(?, ?, ?, ?, 0, ?)
		ON CONFLICT(chat_id, symbol, direction, threshold) DO NOTHING
	`, a.ChatID, a.Symbol, string(a.Direction), a.Threshold, a.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrDuplicateAlert
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (r *Repo) RemoveAlert(ctx context.Context, chatID, id int64) (*model.Alert, error) {
	a, err := r.getAlert(ctx, chatID, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id=? AND chat_id=?`, id, chatID); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repo) getAlert(ctx context.Context, chatID, id int64) (*model.Alert, error) {
	rows, err := r.db.QueryContext(ctx, alertColumns+` WHERE id=? AND chat_id=?`, id, chatID)
	if err != nil {
		return nil, err
	}
	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, model.ErrAlertNotFound
	}
	return alerts[0], nil
}

func (r *Repo) ListAlerts(ctx context.Context, chatID int64) ([]*model.Alert, error) {
	rows, err := r.db.QueryContext(ctx, alertColumns+` WHERE chat_id=? ORDER BY id`, chatID)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *Repo) FindAlertsFor(ctx context.Context, symbol string) ([]*model.Alert, error) {
	rows, err := r.db.QueryContext(ctx, alertColumns+` WHERE symbol=? ORDER BY chat_id, id`, symbol)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *Repo) SaveAlertState(ctx context.Context, a *model.Alert) error {
	var lastFired sql.NullInt64
	if a.LastFiredAt != nil {
		lastFired = sql.NullInt64{Int64: a.LastFiredAt.UnixMilli(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET last_fired_ms=?, bounced=? WHERE id=?`,
		lastFired, boolInt(a.Bounced), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrAlertNotFound
	}
	return nil
}

func (r *Repo) AddWatch(ctx context.Context, chatID int64, symbol string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO watchlist(chat_id, symbol, created_ms) VALUES(?, ?, ?)
		ON CONFLICT(chat_id, symbol) DO NOTHING
	`, chatID, symbol, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrAlreadyWatching
	}
	return nil
}

func (r *Repo) RemoveWatch(ctx context.Context, chatID int64, symbol string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM watchlist WHERE chat_id=? AND symbol=?`, chatID, symbol)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrNotWatching
	}
	return nil
}

func (r *Repo) ListWatch(ctx context.Context, chatID int64) ([]string, error) {
	return r.listStrings(ctx, `SELECT symbol FROM watchlist WHERE chat_id=? ORDER BY id`, chatID)
}

func (r *Repo) SaveAccount(ctx context.Context, acc model.BrokerAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts(user_id, api_key, secret_key, updated_ms) VALUES(?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
		api_key=excluded.api_key, secret_key=excluded.secret_key, updated_ms=excluded.updated_ms
	`, acc.UserID, acc.APIKey, acc.SecretKey, time.Now().UnixMilli())
	return err
}

func (r *Repo) ListAccounts(ctx context.Context) ([]model.BrokerAccount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, api_key, secret_key FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BrokerAccount
	for rows.Next() {
		var acc model.BrokerAccount
		if err := rows.Scan(&acc.UserID, &acc.APIKey, &acc.SecretKey); err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r *Repo) ListActiveSymbols(ctx context.Context) ([]string, error) {
	return r.listStrings(ctx, `
		SELECT symbol FROM (
			SELECT symbol, MIN(id) AS ord, 0 AS src FROM watchlist GROUP BY symbol
			UNION
			SELECT symbol, MIN(id) AS ord, 1 AS src FROM alerts GROUP BY symbol
		) GROUP BY symbol ORDER BY MIN(src), MIN(ord)
	`)
}

func (r *Repo) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const alertColumns = `SELECT id, chat_id, symbol, direction, threshold, last_fired_ms, bounced, created_ms FROM alerts`

func scanAlerts(rows *sql.Rows) ([]*model.Alert, error) {
	defer rows.Close()

	var out []*model.Alert
	for rows.Next() {
		var (
			a         model.Alert
			dir       string
			lastFired sql.NullInt64
			bounced   int
			created   int64
		)
		if err := rows.Scan(&a.ID, &a.ChatID, &a.Symbol, &dir, &a.Threshold, &lastFired, &bounced, &created); err != nil {
			return nil, err
		}
		a.Direction = model.Direction(dir)
		if lastFired.Valid {
			t := time.UnixMilli(lastFired.Int64)
			a.LastFiredAt = &t
		}
		a.Bounced = bounced != 0
		a.CreatedAt = time.UnixMilli(created)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ port.Store = (*Repo)(nil)
