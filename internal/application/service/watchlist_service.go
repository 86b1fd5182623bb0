package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

// WatchView is one watchlist row with its last known quote.
type WatchView struct {
	Symbol   string
	Quote    model.Quote
	HasQuote bool
}

type WatchlistService struct {
	watch  port.WatchlistRepository
	quotes port.QuoteRepository
	subs   Subscriber
}

func NewWatchlistService(watch port.WatchlistRepository, quotes port.QuoteRepository, subs Subscriber) *WatchlistService {
	return &WatchlistService{watch: watch, quotes: quotes, subs: subs}
}

func (s *WatchlistService) Add(ctx context.Context, chatID int64, symbol string) error {
	symbol = model.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrInvalidSymbol
	}
	if err := s.watch.AddWatch(ctx, chatID, symbol); err != nil {
		return err
	}
	log.Info().Int64("chat_id", chatID).Str("symbol", symbol).Msg("watch added")

	if err := s.subs.AddAndSend(ctx, symbol); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("subscribe watch symbol failed")
	}
	return nil
}

func (s *WatchlistService) Remove(ctx context.Context, chatID int64, symbol string) error {
	symbol = model.NormalizeSymbol(symbol)
	if err := s.watch.RemoveWatch(ctx, chatID, symbol); err != nil {
		return err
	}
	log.Info().Int64("chat_id", chatID).Str("symbol", symbol).Msg("watch removed")

	if err := s.subs.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("refresh after watch removal failed")
	}
	return nil
}

func (s *WatchlistService) List(ctx context.Context, chatID int64) ([]WatchView, error) {
	symbols, err := s.watch.ListWatch(ctx, chatID)
	if err != nil {
		return nil, err
	}
	quotes, err := s.quotes.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	out := make([]WatchView, 0, len(symbols))
	for _, sym := range symbols {
		q, ok := quotes[sym]
		out = append(out, WatchView{Symbol: sym, Quote: q, HasQuote: ok})
	}
	return out, nil
}
