package port

import (
	"context"

	"quotewatch/internal/domain/model"
)

// PriceSink receives tick and alert-fire writes. Several sinks may be
// combined, see storage/composite.
type PriceSink interface {
	// UpsertPrice merges t into the last known quote. A tick without a
	// price must not overwrite a known price.
	UpsertPrice(ctx context.Context, t model.Tick) error

	InsertAlertEvent(ctx context.Context, ev *model.AlertEvent) error
}

// QuoteRepository reads last known quotes.
type QuoteRepository interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
}

// AlertRepository owns per-chat alerts.
type AlertRepository interface {
	// CreateAlert assigns a.ID. Returns model.ErrDuplicateAlert when the chat
	// already has an alert with the same symbol, direction and threshold.
	CreateAlert(ctx context.Context, a *model.Alert) error

	// RemoveAlert returns model.ErrAlertNotFound when id is not owned by chatID.
	RemoveAlert(ctx context.Context, chatID, id int64) (*model.Alert, error)

	ListAlerts(ctx context.Context, chatID int64) ([]*model.Alert, error)

	// FindAlertsFor returns the alerts of every chat watching symbol.
	FindAlertsFor(ctx context.Context, symbol string) ([]*model.Alert, error)

	// SaveAlertState persists LastFiredAt and Bounced.
	SaveAlertState(ctx context.Context, a *model.Alert) error
}

// WatchlistRepository owns per-chat manual watchlists.
type WatchlistRepository interface {
	// AddWatch returns ErrAlreadyWatching on duplicates.
	AddWatch(ctx context.Context, chatID int64, symbol string) error
	// RemoveWatch returns ErrNotWatching when symbol is not in the list.
	RemoveWatch(ctx context.Context, chatID int64, symbol string) error
	ListWatch(ctx context.Context, chatID int64) ([]string, error)
}

// AccountRepository stores broker credentials of registered users.
type AccountRepository interface {
	SaveAccount(ctx context.Context, acc model.BrokerAccount) error
	ListAccounts(ctx context.Context) ([]model.BrokerAccount, error)
}

// Store is the durable state the core consumes.
type Store interface {
	PriceSink
	QuoteRepository
	AlertRepository
	WatchlistRepository
	AccountRepository

	// ListActiveSymbols returns every watchlist and alert symbol across chats.
	ListActiveSymbols(ctx context.Context) ([]string, error)

	Close() error
}
