package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

const (
	DefaultFetchTimeout = 3 * time.Second
	fetchPollInterval   = 100 * time.Millisecond
)

// FetchOptions controls one Fetch call. Zero Timeout means the service
// default.
type FetchOptions struct {
	Timeout    time.Duration
	RequireAll bool
}

// QuoteService answers one-shot price requests on top of the stream.
type QuoteService struct {
	venue        port.Venue
	defaults     FetchOptions
	pollInterval time.Duration
}

func NewQuoteService(venue port.Venue, defaults FetchOptions) *QuoteService {
	if defaults.Timeout <= 0 {
		defaults.Timeout = DefaultFetchTimeout
	}
	return &QuoteService{venue: venue, defaults: defaults, pollInterval: fetchPollInterval}
}

// Defaults returns the options used when a caller has no preference.
func (s *QuoteService) Defaults() FetchOptions { return s.defaults }

// Fetch subscribes to symbols on top of the current set, waits for fresh
// prices and restores the subscription set. It never returns an error: a
// timeout yields whatever arrived, possibly nothing.
func (s *QuoteService) Fetch(ctx context.Context, symbols []string, opts FetchOptions) map[string]float64 {
	if opts.Timeout <= 0 {
		opts.Timeout = s.defaults.Timeout
	}

	requested := model.NewSymbolSet(symbols...)
	result := make(map[string]float64, requested.Len())
	if requested.Len() == 0 || !s.venue.IsConnected() {
		return result
	}

	var mu sync.Mutex
	remove := s.venue.AddTickListener(func(_ context.Context, t model.Tick) {
		if !t.HasPrice() || !requested.Has(t.Symbol) {
			return
		}
		mu.Lock()
		result[t.Symbol] = t.Price
		mu.Unlock()
	})
	defer func() {
		remove()
		// 恢复为 venue 当前的 desired 集合，而不是调用时的快照
		if err := s.venue.ResendDesired(); err != nil {
			log.Warn().Err(err).Msg("restore subscriptions failed")
		}
	}()

	overlay := model.NewSymbolSet(s.venue.DesiredSymbols()...)
	overlay.Add(requested.Slice()...)
	if err := s.venue.SendQuotes(overlay.Slice()); err != nil {
		log.Warn().Err(err).Strs("symbols", requested.Slice()).Msg("quote fetch subscribe failed")
		return snapshot(&mu, result)
	}

	done := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if opts.RequireAll {
			return len(result) == requested.Len()
		}
		return len(result) > 0
	}

	timeout := time.NewTimer(opts.Timeout)
	defer timeout.Stop()
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	for !done() {
		select {
		case <-poll.C:
		case <-timeout.C:
			out := snapshot(&mu, result)
			log.Debug().Int("requested", requested.Len()).Int("received", len(out)).Msg("quote fetch timed out")
			return out
		case <-ctx.Done():
			return snapshot(&mu, result)
		}
	}
	return snapshot(&mu, result)
}

func snapshot(mu *sync.Mutex, m map[string]float64) map[string]float64 {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
