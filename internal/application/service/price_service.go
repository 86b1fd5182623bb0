package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

type PriceService struct {
	sink port.PriceSink
}

func NewPriceService(sink port.PriceSink) *PriceService {
	return &PriceService{sink: sink}
}

func (s *PriceService) UpdatePrice(ctx context.Context, t model.Tick) error {
	return s.sink.UpsertPrice(ctx, t)
}

// HandleTick is the dispatcher listener. Write errors are logged and the
// tick stream goes on.
func (s *PriceService) HandleTick(ctx context.Context, t model.Tick) {
	if err := s.UpdatePrice(ctx, t); err != nil {
		log.Error().Err(err).Str("symbol", t.Symbol).Msg("store price failed")
	}
}
