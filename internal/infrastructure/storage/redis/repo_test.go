package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quotewatch/internal/domain/model"
)

func newTestRepo(t *testing.T) (*Repo, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb, "qw", time.Hour, "", ""), rdb
}

func TestRedisRepoUpsertPriceMergesFields(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	now := time.UnixMilli(1767369600000)

	if err := repo.UpsertPrice(ctx, model.Tick{Symbol: "AAPL", Price: 150.5, ObservedAt: now}); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}
	theta := -0.03
	if err := repo.UpsertPrice(ctx, model.Tick{Symbol: "AAPL", Theta: &theta, ObservedAt: now.Add(time.Second)}); err != nil {
		t.Fatalf("UpsertPrice failed: %v", err)
	}

	quotes, err := repo.GetQuotes(ctx, []string{"AAPL", "TSLA"})
	if err != nil {
		t.Fatalf("GetQuotes failed: %v", err)
	}
	q, ok := quotes["AAPL"]
	if !ok {
		t.Fatalf("expected AAPL quote")
	}
	if _, ok := quotes["TSLA"]; ok {
		t.Errorf("unexpected TSLA quote")
	}
	if q.Price != 150.5 {
		t.Errorf("expected price=150.5, got %v", q.Price)
	}
	if q.Theta == nil || *q.Theta != -0.03 {
		t.Errorf("expected theta=-0.03, got %v", q.Theta)
	}
	if q.Delta != nil {
		t.Errorf("expected no delta, got %v", *q.Delta)
	}
	if !q.UpdatedAt.Equal(now.Add(time.Second)) {
		t.Errorf("unexpected updated at %v", q.UpdatedAt)
	}
}

func TestRedisRepoInsertAlertEvent(t *testing.T) {
	repo, rdb := newTestRepo(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "qw:alerts:pub")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ev := &model.AlertEvent{
		ID: "ev-1", AlertID: 3, ChatID: 7, Symbol: "AAPL",
		Direction: model.Above, Threshold: 150, Price: 151, FiredAt: time.Now(),
	}
	if err := repo.InsertAlertEvent(ctx, ev); err != nil {
		t.Fatalf("InsertAlertEvent failed: %v", err)
	}

	n, err := rdb.XLen(ctx, "qw:alerts").Result()
	if err != nil {
		t.Fatalf("XLen failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 stream entry, got %d", n)
	}

	select {
	case msg := <-sub.Channel():
		var got model.AlertEvent
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if got.AlertID != 3 || got.Symbol != "AAPL" {
			t.Errorf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no pub/sub message")
	}
}
