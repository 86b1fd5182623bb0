package port

import (
	"context"

	"quotewatch/internal/domain/model"
)

// TickListener receives ticks from the venue dispatcher. Calls for one symbol
// are sequential and in receipt order.
type TickListener func(ctx context.Context, t model.Tick)

// Venue is the streaming connection as seen by the application services.
type Venue interface {
	// IsConnected is true only when the transport is open and authenticated.
	IsConnected() bool

	// DesiredSymbols returns a copy of the current desired subscription set.
	DesiredSymbols() []string

	// ReplaceSubscriptions stores symbols as the desired set and sends it.
	// When portfolio is set the portfolio stream is enabled first.
	ReplaceSubscriptions(symbols []string, portfolio bool) error

	// SendQuotes sends a quotes frame without touching the desired set.
	SendQuotes(symbols []string) error

	// ResendDesired sends the current desired set again.
	ResendDesired() error

	AddTickListener(l TickListener) (remove func())
}
