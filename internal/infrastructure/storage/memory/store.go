package memory

import (
	"context"
	"sync"
	"time"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

// Store is an in-memory port.Store, used when no database is configured and
// in tests.
type Store struct {
	mu sync.RWMutex

	quotes    map[string]model.Quote
	alerts    []*model.Alert
	nextID    int64
	watch     map[int64][]string
	accounts  map[int64]model.BrokerAccount
	events    []*model.AlertEvent
	failPrice error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		quotes:   make(map[string]model.Quote),
		watch:    make(map[int64][]string),
		accounts: make(map[int64]model.BrokerAccount),
	}
}

// FailPriceWrites makes UpsertPrice return err until called with nil.
func (s *Store) FailPriceWrites(err error) {
	s.mu.Lock()
	s.failPrice = err
	s.mu.Unlock()
}

func (s *Store) UpsertPrice(ctx context.Context, t model.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPrice != nil {
		return s.failPrice
	}
	if !t.HasPrice() && !t.HasGreeks() {
		return nil
	}
	s.quotes[t.Symbol] = s.quotes[t.Symbol].Merge(t)
	return nil
}

func (s *Store) InsertAlertEvent(ctx context.Context, ev *model.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ev
	s.events = append(s.events, &cp)
	return nil
}

// Events returns the recorded alert fires.
func (s *Store) Events() []model.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AlertEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}

func (s *Store) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := s.quotes[sym]; ok {
			out[sym] = q
		}
	}
	return out, nil
}

func (s *Store) CreateAlert(ctx context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.alerts {
		if existing.SameCondition(a) {
			return model.ErrDuplicateAlert
		}
	}
	s.nextID++
	a.ID = s.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.alerts = append(s.alerts, cloneAlert(a))
	return nil
}

func (s *Store) RemoveAlert(ctx context.Context, chatID, id int64) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.alerts {
		if a.ID == id && a.ChatID == chatID {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			return a, nil
		}
	}
	return nil, model.ErrAlertNotFound
}

func (s *Store) ListAlerts(ctx context.Context, chatID int64) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Alert
	for _, a := range s.alerts {
		if a.ChatID == chatID {
			out = append(out, cloneAlert(a))
		}
	}
	return out, nil
}

func (s *Store) FindAlertsFor(ctx context.Context, symbol string) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Alert
	for _, a := range s.alerts {
		if a.Symbol == symbol {
			out = append(out, cloneAlert(a))
		}
	}
	return out, nil
}

func (s *Store) SaveAlertState(ctx context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.alerts {
		if existing.ID == a.ID {
			c := cloneAlert(a)
			existing.LastFiredAt = c.LastFiredAt
			existing.Bounced = c.Bounced
			return nil
		}
	}
	return model.ErrAlertNotFound
}

func (s *Store) AddWatch(ctx context.Context, chatID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range s.watch[chatID] {
		if sym == symbol {
			return port.ErrAlreadyWatching
		}
	}
	s.watch[chatID] = append(s.watch[chatID], symbol)
	return nil
}

func (s *Store) RemoveWatch(ctx context.Context, chatID int64, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.watch[chatID]
	for i, sym := range list {
		if sym == symbol {
			s.watch[chatID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return port.ErrNotWatching
}

func (s *Store) ListWatch(ctx context.Context, chatID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.watch[chatID]...), nil
}

func (s *Store) SaveAccount(ctx context.Context, acc model.BrokerAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.UserID] = acc
	return nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.BrokerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BrokerAccount, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	return out, nil
}

func (s *Store) ListActiveSymbols(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := model.NewSymbolSet()
	for _, list := range s.watch {
		set.Add(list...)
	}
	for _, a := range s.alerts {
		set.Add(a.Symbol)
	}
	return set.Slice(), nil
}

func (s *Store) Close() error { return nil }

func cloneAlert(a *model.Alert) *model.Alert {
	c := *a
	if a.LastFiredAt != nil {
		t := *a.LastFiredAt
		c.LastFiredAt = &t
	}
	return &c
}

var _ port.Store = (*Store)(nil)
