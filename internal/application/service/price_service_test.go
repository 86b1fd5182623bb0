package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"quotewatch/internal/domain/model"
	"quotewatch/internal/infrastructure/storage/memory"
)

func TestPriceServiceUpdatePrice(t *testing.T) {
	store := memory.NewStore()
	svc := NewPriceService(store)
	ctx := context.Background()

	if err := svc.UpdatePrice(ctx, model.Tick{Symbol: "AAPL", Price: 150, ObservedAt: time.Now()}); err != nil {
		t.Fatalf("UpdatePrice failed: %v", err)
	}
	// no price, no greeks: stored price is untouched
	svc.HandleTick(ctx, model.Tick{Symbol: "AAPL", Price: 0, ObservedAt: time.Now()})
	delta := 0.5
	svc.HandleTick(ctx, model.Tick{Symbol: "AAPL", Price: -1, Delta: &delta, ObservedAt: time.Now()})

	quotes, _ := store.GetQuotes(ctx, []string{"AAPL"})
	q := quotes["AAPL"]
	if q.Price != 150 {
		t.Errorf("expected price 150, got %v", q.Price)
	}
	if q.Delta == nil || *q.Delta != 0.5 {
		t.Errorf("expected delta 0.5, got %v", q.Delta)
	}
}

func TestPriceServiceHandleTickSwallowsWriteErrors(t *testing.T) {
	store := memory.NewStore()
	store.FailPriceWrites(errors.New("db locked"))
	svc := NewPriceService(store)

	// must not panic or block
	svc.HandleTick(context.Background(), model.Tick{Symbol: "AAPL", Price: 150, ObservedAt: time.Now()})

	if err := svc.UpdatePrice(context.Background(), model.Tick{Symbol: "AAPL", Price: 150}); err == nil {
		t.Errorf("expected write error to surface from UpdatePrice")
	}
}
