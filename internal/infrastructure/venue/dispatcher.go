package venue

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

const (
	defaultDispatchWorkers = 4
	defaultDispatchBuffer  = 1024
)

type listenerEntry struct {
	id uint64
	fn port.TickListener
}

// Dispatcher fans ticks out to listeners on a fixed set of shard workers.
// A symbol always maps to the same shard, so ticks of one symbol reach the
// listeners in receipt order. Listeners of one tick run sequentially in
// registration order.
type Dispatcher struct {
	shards []chan model.Tick

	mu        sync.RWMutex
	listeners []listenerEntry
	nextID    uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewDispatcher(workers, buffer int) *Dispatcher {
	if workers <= 0 {
		workers = defaultDispatchWorkers
	}
	if buffer <= 0 {
		buffer = defaultDispatchBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		shards: make([]chan model.Tick, workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range d.shards {
		d.shards[i] = make(chan model.Tick, buffer)
		d.wg.Add(1)
		go d.work(d.shards[i])
	}
	return d
}

// AddListener registers fn and returns a func that unregisters it.
func (d *Dispatcher) AddListener(fn port.TickListener) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, listenerEntry{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, l := range d.listeners {
				if l.id == id {
					// copy-on-write: workers may hold the old slice
					next := make([]listenerEntry, 0, len(d.listeners)-1)
					next = append(next, d.listeners[:i]...)
					d.listeners = append(next, d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish enqueues t on its shard. It blocks while that shard is full and
// drops the tick once the dispatcher is closed.
func (d *Dispatcher) Publish(t model.Tick) {
	ch := d.shards[xxhash.Sum64String(t.Symbol)%uint64(len(d.shards))]
	select {
	case ch <- t:
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) work(ch <-chan model.Tick) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case t := <-ch:
			d.deliver(t)
		}
	}
}

func (d *Dispatcher) deliver(t model.Tick) {
	d.mu.RLock()
	ls := d.listeners
	d.mu.RUnlock()

	for _, l := range ls {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("symbol", t.Symbol).Interface("panic", r).Msg("tick listener panicked")
				}
			}()
			l.fn(d.ctx, t)
		}()
	}
}

// Close stops the workers. Pending ticks are dropped.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.cancel()
		d.wg.Wait()
	})
}
