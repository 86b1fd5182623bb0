package venue

import (
	"context"
	"sync"
	"testing"
	"time"

	"quotewatch/internal/domain/model"
)

func TestDispatcherKeepsPerSymbolOrder(t *testing.T) {
	d := NewDispatcher(4, 8)
	defer d.Close()

	const n = 500
	var mu sync.Mutex
	got := map[string][]float64{}
	done := make(chan struct{})
	total := 0

	d.AddListener(func(_ context.Context, tk model.Tick) {
		mu.Lock()
		defer mu.Unlock()
		got[tk.Symbol] = append(got[tk.Symbol], tk.Price)
		total++
		if total == 2*n {
			close(done)
		}
	})

	for i := 1; i <= n; i++ {
		d.Publish(model.Tick{Symbol: "AAPL", Price: float64(i)})
		d.Publish(model.Tick{Symbol: "TSLA", Price: float64(i)})
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for ticks")
	}

	mu.Lock()
	defer mu.Unlock()
	for sym, prices := range got {
		for i, p := range prices {
			if p != float64(i+1) {
				t.Fatalf("%s: out of order at %d: %v", sym, i, p)
			}
		}
	}
}

func TestDispatcherListenersRunInRegistrationOrder(t *testing.T) {
	d := NewDispatcher(1, 1)
	defer d.Close()

	calls := make(chan string, 3)
	d.AddListener(func(context.Context, model.Tick) { calls <- "first" })
	d.AddListener(func(context.Context, model.Tick) { calls <- "second" })
	d.AddListener(func(context.Context, model.Tick) { calls <- "third" })

	d.Publish(model.Tick{Symbol: "AAPL", Price: 1})

	for _, want := range []string{"first", "second", "third"} {
		select {
		case got := <-calls:
			if got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestDispatcherRemoveListener(t *testing.T) {
	d := NewDispatcher(1, 4)
	defer d.Close()

	removed := make(chan model.Tick, 4)
	kept := make(chan model.Tick, 4)
	remove := d.AddListener(func(_ context.Context, tk model.Tick) { removed <- tk })
	d.AddListener(func(_ context.Context, tk model.Tick) { kept <- tk })

	remove()
	remove() // idempotent

	d.Publish(model.Tick{Symbol: "AAPL", Price: 1})
	select {
	case <-kept:
	case <-time.After(2 * time.Second):
		t.Fatalf("kept listener not called")
	}
	if len(removed) != 0 {
		t.Errorf("removed listener must not be called")
	}
}

func TestDispatcherSurvivesPanickingListener(t *testing.T) {
	d := NewDispatcher(1, 4)
	defer d.Close()

	got := make(chan float64, 2)
	d.AddListener(func(context.Context, model.Tick) { panic("boom") })
	d.AddListener(func(_ context.Context, tk model.Tick) { got <- tk.Price })

	d.Publish(model.Tick{Symbol: "AAPL", Price: 1})
	d.Publish(model.Tick{Symbol: "AAPL", Price: 2})
	for _, want := range []float64{1, 2} {
		select {
		case p := <-got:
			if p != want {
				t.Fatalf("expected %v, got %v", want, p)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out")
		}
	}
}

func TestDispatcherPublishAfterCloseDoesNotBlock(t *testing.T) {
	d := NewDispatcher(1, 1)
	d.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(model.Tick{Symbol: "AAPL", Price: 1})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked after Close")
	}
}
