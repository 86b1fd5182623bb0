package service

import (
	"context"
	"errors"
	"sync"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

type replaceCall struct {
	symbols   []string
	portfolio bool
}

// fakeVenue records subscription traffic and lets tests emit ticks.
type fakeVenue struct {
	mu        sync.Mutex
	connected bool
	desired   []string
	replaced  []replaceCall
	sent      [][]string
	resends   int
	listeners map[int]port.TickListener
	nextID    int

	// onSend runs after SendQuotes, outside the lock
	onSend func(symbols []string)
}

func newFakeVenue(connected bool) *fakeVenue {
	return &fakeVenue{connected: connected, listeners: map[int]port.TickListener{}}
}

func (v *fakeVenue) IsConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *fakeVenue) DesiredSymbols() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.desired...)
}

func (v *fakeVenue) ReplaceSubscriptions(symbols []string, portfolio bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.desired = append([]string(nil), symbols...)
	v.replaced = append(v.replaced, replaceCall{symbols: append([]string(nil), symbols...), portfolio: portfolio})
	return nil
}

func (v *fakeVenue) SendQuotes(symbols []string) error {
	v.mu.Lock()
	v.sent = append(v.sent, append([]string(nil), symbols...))
	hook := v.onSend
	v.mu.Unlock()
	if hook != nil {
		hook(symbols)
	}
	return nil
}

func (v *fakeVenue) ResendDesired() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resends++
	v.sent = append(v.sent, append([]string(nil), v.desired...))
	return nil
}

func (v *fakeVenue) AddTickListener(l port.TickListener) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = l
	return func() {
		v.mu.Lock()
		delete(v.listeners, id)
		v.mu.Unlock()
	}
}

func (v *fakeVenue) emit(t model.Tick) {
	v.mu.Lock()
	ls := make([]port.TickListener, 0, len(v.listeners))
	for _, l := range v.listeners {
		ls = append(ls, l)
	}
	v.mu.Unlock()
	for _, l := range ls {
		l(context.Background(), t)
	}
}

func (v *fakeVenue) listenerCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.listeners)
}

func (v *fakeVenue) lastReplace() (replaceCall, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.replaced) == 0 {
		return replaceCall{}, false
	}
	return v.replaced[len(v.replaced)-1], true
}

type fakeBroker struct {
	mu        sync.Mutex
	positions map[int64][]model.Position
	fail      map[int64]bool
	calls     int
}

func (b *fakeBroker) GetPositions(ctx context.Context, acc model.BrokerAccount) ([]model.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail[acc.UserID] {
		return nil, errors.New("broker unavailable")
	}
	return b.positions[acc.UserID], nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, sentMessage{chatID: chatID, text: text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.msgs...)
}

type fakeSubscriber struct {
	refreshes int
	added     []string
}

func (s *fakeSubscriber) Refresh(ctx context.Context) error {
	s.refreshes++
	return nil
}

func (s *fakeSubscriber) AddAndSend(ctx context.Context, symbols ...string) error {
	s.added = append(s.added, symbols...)
	return nil
}

type recordingObserver struct {
	seen [][]model.Position
}

func (o *recordingObserver) ObservePositions(ctx context.Context, positions []model.Position) error {
	o.seen = append(o.seen, positions)
	return nil
}
