package port

import (
	"context"

	"quotewatch/internal/domain/model"
)

// Notifier delivers a text message to a chat.
type Notifier interface {
	Name() string
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// BrokerClient is the broker REST surface used for subscription discovery.
type BrokerClient interface {
	GetPositions(ctx context.Context, acc model.BrokerAccount) ([]model.Position, error)
}
