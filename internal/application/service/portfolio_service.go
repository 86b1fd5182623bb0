package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

var ErrAccountNotFound = errors.New("broker account not found")

// PositionObserver is told about every freshly fetched portfolio so new
// symbols get subscribed.
type PositionObserver interface {
	ObservePositions(ctx context.Context, positions []model.Position) error
}

type PortfolioService struct {
	accounts port.AccountRepository
	broker   port.BrokerClient
	observer PositionObserver
}

func NewPortfolioService(accounts port.AccountRepository, broker port.BrokerClient, observer PositionObserver) *PortfolioService {
	return &PortfolioService{accounts: accounts, broker: broker, observer: observer}
}

// Positions fetches the positions of userID from the broker. Symbols not yet
// subscribed trigger a full reconciliation.
func (s *PortfolioService) Positions(ctx context.Context, userID int64) ([]model.Position, error) {
	acc, err := s.account(ctx, userID)
	if err != nil {
		return nil, err
	}
	positions, err := s.broker.GetPositions(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("positions of user %d: %w", userID, err)
	}

	if err := s.observer.ObservePositions(ctx, positions); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("subscribe portfolio symbols failed")
	}
	return positions, nil
}

func (s *PortfolioService) account(ctx context.Context, userID int64) (model.BrokerAccount, error) {
	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return model.BrokerAccount{}, err
	}
	for _, acc := range accounts {
		if acc.UserID == userID {
			return acc, nil
		}
	}
	return model.BrokerAccount{}, fmt.Errorf("%w: %d", ErrAccountNotFound, userID)
}
