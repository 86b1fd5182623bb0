package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"quotewatch/internal/domain/model"
	"quotewatch/internal/infrastructure/storage/memory"
)

func TestAlertServiceCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	subs := &fakeSubscriber{}
	svc := NewAlertService(store, store, subs)

	a, err := svc.Create(ctx, 7, " aapl ", ">150")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if a.ID == 0 || a.Symbol != "AAPL" || a.Direction != model.Above || a.Threshold != 150 {
		t.Errorf("unexpected alert %+v", a)
	}
	if len(subs.added) != 1 || subs.added[0] != "AAPL" {
		t.Errorf("expected AAPL to be subscribed, got %v", subs.added)
	}

	if _, err := svc.Create(ctx, 7, "AAPL", ">150"); !errors.Is(err, model.ErrDuplicateAlert) {
		t.Errorf("expected ErrDuplicateAlert, got %v", err)
	}
	if _, err := svc.Create(ctx, 7, "AAPL", "150"); !errors.Is(err, model.ErrInvalidCondition) {
		t.Errorf("expected ErrInvalidCondition, got %v", err)
	}
	if _, err := svc.Create(ctx, 7, " ", ">1"); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("expected ErrInvalidSymbol, got %v", err)
	}
}

func TestAlertServiceRemoveByStableID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	subs := &fakeSubscriber{}
	svc := NewAlertService(store, store, subs)

	first, _ := svc.Create(ctx, 7, "AAPL", ">150")
	second, _ := svc.Create(ctx, 7, "TSLA", "<200")

	if _, err := svc.Remove(ctx, 7, first.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	// the other alert keeps its handle after the list shrinks
	removed, err := svc.Remove(ctx, 7, second.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed.Symbol != "TSLA" {
		t.Errorf("expected TSLA alert, got %+v", removed)
	}
	if subs.refreshes != 2 {
		t.Errorf("expected 2 refreshes, got %d", subs.refreshes)
	}
	if _, err := svc.Remove(ctx, 7, second.ID); !errors.Is(err, model.ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestAlertServiceListWithPrices(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAlertService(store, store, &fakeSubscriber{})

	svc.Create(ctx, 7, "AAPL", ">150")
	svc.Create(ctx, 7, "TSLA", "<200")
	store.UpsertPrice(ctx, model.Tick{Symbol: "AAPL", Price: 149, ObservedAt: time.Now()})

	views, err := svc.List(ctx, 7)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(views))
	}
	if !views[0].HasPrice || views[0].Price != 149 {
		t.Errorf("expected AAPL price, got %+v", views[0])
	}
	if views[1].HasPrice {
		t.Errorf("TSLA has no price yet")
	}
}
