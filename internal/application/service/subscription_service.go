package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

const defaultPollParallelism = 4

// Subscriber is what alert and watchlist mutations need from the
// reconciler.
type Subscriber interface {
	Refresh(ctx context.Context) error
	AddAndSend(ctx context.Context, symbols ...string) error
}

type SubscriptionOptions struct {
	PollParallelism int
	RefreshInterval time.Duration // 0 disables the periodic refresh
}

// SubscriptionService keeps the venue subscription set equal to the union of
// broker positions, watchlists and alert symbols.
type SubscriptionService struct {
	venue  port.Venue
	store  port.Store
	broker port.BrokerClient
	opts   SubscriptionOptions

	// one reconciliation at a time
	mu sync.Mutex
}

func NewSubscriptionService(venue port.Venue, store port.Store, broker port.BrokerClient, opts SubscriptionOptions) *SubscriptionService {
	if opts.PollParallelism <= 0 {
		opts.PollParallelism = defaultPollParallelism
	}
	return &SubscriptionService{venue: venue, store: store, broker: broker, opts: opts}
}

// Refresh recomputes the full subscription set and sends it. It does
// nothing while the venue is not connected.
func (s *SubscriptionService) Refresh(ctx context.Context) error {
	if !s.venue.IsConnected() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	set := model.NewSymbolSet()
	for _, p := range s.pollPositions(ctx) {
		set.Add(p.Symbol, p.UnderlyingSymbol)
	}

	active, err := s.store.ListActiveSymbols(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list active symbols failed")
	}
	set.Add(active...)

	portfolio := set.AnyOption()
	log.Info().Int("symbols", set.Len()).Bool("portfolio", portfolio).Msg("subscriptions refreshed")
	return s.venue.ReplaceSubscriptions(set.Slice(), portfolio)
}

// pollPositions asks the broker for every account's positions. Failed
// accounts are logged and skipped.
func (s *SubscriptionService) pollPositions(ctx context.Context) []model.Position {
	if s.broker == nil {
		return nil
	}
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list broker accounts failed")
		return nil
	}

	results := make([][]model.Position, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.PollParallelism)
	for i, acc := range accounts {
		if acc.APIKey == "" || acc.SecretKey == "" {
			continue
		}
		g.Go(func() error {
			positions, err := s.broker.GetPositions(gctx, acc)
			if err != nil {
				log.Warn().Err(err).Int64("user_id", acc.UserID).Msg("poll positions failed")
				return nil
			}
			results[i] = positions
			return nil
		})
	}
	_ = g.Wait()

	var out []model.Position
	for _, ps := range results {
		out = append(out, ps...)
	}
	return out
}

// AddAndSend merges symbols into the current set and resends it without
// polling the broker. A set that did not grow is not resent.
func (s *SubscriptionService) AddAndSend(ctx context.Context, symbols ...string) error {
	if !s.venue.IsConnected() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.venue.DesiredSymbols()
	set := model.NewSymbolSet(current...)
	set.Add(symbols...)
	if model.SameSymbols(current, set.Slice()) {
		return nil
	}
	return s.venue.ReplaceSubscriptions(set.Slice(), false)
}

// EnsureSubscribed triggers a full refresh when any of symbols is missing
// from the current set.
func (s *SubscriptionService) EnsureSubscribed(ctx context.Context, symbols []string) error {
	desired := model.NewSymbolSet(s.venue.DesiredSymbols()...)
	for _, sym := range symbols {
		if sym != "" && !desired.Has(sym) {
			return s.Refresh(ctx)
		}
	}
	return nil
}

// ObservePositions is called with positions seen outside the reconciler,
// e.g. a portfolio view.
func (s *SubscriptionService) ObservePositions(ctx context.Context, positions []model.Position) error {
	symbols := make([]string, 0, 2*len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol, p.UnderlyingSymbol)
	}
	return s.EnsureSubscribed(ctx, symbols)
}

// HandleAuthenticated is registered as the venue auth hook.
func (s *SubscriptionService) HandleAuthenticated(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		log.Error().Err(err).Msg("initial subscription failed")
	}
}

// Run refreshes periodically until ctx is done.
func (s *SubscriptionService) Run(ctx context.Context) {
	if s.opts.RefreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("periodic subscription refresh failed")
			}
		}
	}
}
