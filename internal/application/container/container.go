package container

import (
	"time"

	"quotewatch/internal/application/port"
	"quotewatch/internal/application/service"
)

// Deps are the ports the application services run on.
type Deps struct {
	Store    port.Store
	Sink     port.PriceSink // nil: Store
	Venue    port.Venue
	Broker   port.BrokerClient
	Notifier port.Notifier

	Fetch         service.FetchOptions
	Subscriptions service.SubscriptionOptions
	AlertCooldown time.Duration
}

// Container builds application services lazily and shares them.
type Container struct {
	deps Deps

	priceService        *service.PriceService
	notificationService *service.NotificationService
	quoteService        *service.QuoteService
	subscriptionService *service.SubscriptionService
	alertService        *service.AlertService
	watchlistService    *service.WatchlistService
	portfolioService    *service.PortfolioService
}

func New(deps Deps) *Container {
	if deps.Sink == nil {
		deps.Sink = deps.Store
	}
	return &Container{deps: deps}
}

func (c *Container) Store() port.Store {
	return c.deps.Store
}

func (c *Container) PriceService() *service.PriceService {
	if c.priceService == nil {
		c.priceService = service.NewPriceService(c.deps.Sink)
	}
	return c.priceService
}

func (c *Container) NotificationService() *service.NotificationService {
	if c.notificationService == nil {
		c.notificationService = service.NewNotificationService(c.deps.Store, c.deps.Sink, c.deps.Notifier, c.deps.AlertCooldown)
	}
	return c.notificationService
}

func (c *Container) QuoteService() *service.QuoteService {
	if c.quoteService == nil {
		c.quoteService = service.NewQuoteService(c.deps.Venue, c.deps.Fetch)
	}
	return c.quoteService
}

func (c *Container) SubscriptionService() *service.SubscriptionService {
	if c.subscriptionService == nil {
		c.subscriptionService = service.NewSubscriptionService(c.deps.Venue, c.deps.Store, c.deps.Broker, c.deps.Subscriptions)
	}
	return c.subscriptionService
}

func (c *Container) AlertService() *service.AlertService {
	if c.alertService == nil {
		c.alertService = service.NewAlertService(c.deps.Store, c.deps.Store, c.SubscriptionService())
	}
	return c.alertService
}

func (c *Container) WatchlistService() *service.WatchlistService {
	if c.watchlistService == nil {
		c.watchlistService = service.NewWatchlistService(c.deps.Store, c.deps.Store, c.SubscriptionService())
	}
	return c.watchlistService
}

func (c *Container) PortfolioService() *service.PortfolioService {
	if c.portfolioService == nil {
		c.portfolioService = service.NewPortfolioService(c.deps.Store, c.deps.Broker, c.SubscriptionService())
	}
	return c.portfolioService
}

// RegisterListeners attaches the tick consumers to the venue in their
// delivery order: persist, then alerts. QuoteService adds scoped listeners
// on its own.
func (c *Container) RegisterListeners() (remove func()) {
	removePrice := c.deps.Venue.AddTickListener(c.PriceService().HandleTick)
	removeAlerts := c.deps.Venue.AddTickListener(c.NotificationService().HandleTick)
	return func() {
		removeAlerts()
		removePrice()
	}
}
