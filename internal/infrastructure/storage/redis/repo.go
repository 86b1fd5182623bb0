package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

// Repo mirrors the latest quote of each symbol into a hash and publishes
// alert fires to a stream and a pub/sub channel.
type Repo struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	alertStream string
	alertChan   string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, alertStream, alertChan string) *Repo {
	if strings.TrimSpace(alertStream) == "" {
		alertStream = prefix + ":alerts"
	}
	if strings.TrimSpace(alertChan) == "" {
		alertChan = prefix + ":alerts:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		alertStream: alertStream,
		alertChan:   alertChan,
	}
}

func (r *Repo) quoteKey(symbol string) string {
	return r.prefix + ":quote:" + symbol
}

// UpsertPrice 只写本次出现的字段，price 缺失时保留旧值
func (r *Repo) UpsertPrice(ctx context.Context, t model.Tick) error {
	if !t.HasPrice() && !t.HasGreeks() {
		return nil
	}
	fields := map[string]any{"ts_ms": t.ObservedAt.UnixMilli()}
	if t.HasPrice() {
		fields["price"] = t.Price
	}
	if t.Delta != nil {
		fields["delta"] = *t.Delta
	}
	if t.Theta != nil {
		fields["theta"] = *t.Theta
	}

	key := r.quoteKey(t.Symbol)
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	out := make(map[string]model.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(symbols))
	for i, sym := range symbols {
		cmds[i] = pipe.HGetAll(ctx, r.quoteKey(sym))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for i, cmd := range cmds {
		h, err := cmd.Result()
		if err != nil || len(h) == 0 {
			continue
		}
		q := model.Quote{Symbol: symbols[i]}
		q.Price, _ = strconv.ParseFloat(h["price"], 64)
		q.Delta = parseOptional(h, "delta")
		q.Theta = parseOptional(h, "theta")
		if ms, err := strconv.ParseInt(h["ts_ms"], 10, 64); err == nil {
			q.UpdatedAt = time.UnixMilli(ms)
		}
		out[q.Symbol] = q
	}
	return out, nil
}

func (r *Repo) InsertAlertEvent(ctx context.Context, ev *model.AlertEvent) error {
	// 1) Stream: XADD <stream> * ...
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.alertStream,
		Values: map[string]any{
			"id":        ev.ID,
			"alert_id":  ev.AlertID,
			"chat_id":   ev.ChatID,
			"symbol":    ev.Symbol,
			"direction": string(ev.Direction),
			"threshold": ev.Threshold,
			"price":     ev.Price,
			"fired_ms":  ev.FiredAt.UnixMilli(),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, r.alertChan, string(b)).Err()
}

func parseOptional(h map[string]string, field string) *float64 {
	s, ok := h[field]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

var (
	_ port.PriceSink       = (*Repo)(nil)
	_ port.QuoteRepository = (*Repo)(nil)
)
