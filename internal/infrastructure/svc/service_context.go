package svc

import (
	"context"
	"errors"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/container"
	"quotewatch/internal/application/port"
	"quotewatch/internal/application/service"
	"quotewatch/internal/domain/model"
	"quotewatch/internal/infrastructure/broker/tradernet"
	"quotewatch/internal/infrastructure/config"
	"quotewatch/internal/infrastructure/notify"
	_ "quotewatch/internal/infrastructure/notify/telegram"
	compositerepo "quotewatch/internal/infrastructure/storage/composite"
	"quotewatch/internal/infrastructure/storage/memory"
	postgresrepo "quotewatch/internal/infrastructure/storage/postgres"
	redisrepo "quotewatch/internal/infrastructure/storage/redis"
	sqliterepo "quotewatch/internal/infrastructure/storage/sqlite"
	"quotewatch/internal/infrastructure/venue"
	_ "quotewatch/internal/interfaces/console"
)

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	// 基础设施层
	store    port.Store
	sink     port.PriceSink
	link     *venue.Link
	broker   *tradernet.Client
	notifier port.Notifier

	// 应用层
	app *container.Container

	removeListeners func()

	// 资源管理
	closerChain []func() error
}

// New 创建并初始化 ServiceContext
// 所有依赖初始化都在这里完成；失败时已初始化的资源会被关闭
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		closerChain: make([]func() error, 0),
	}
	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

// initializeComponents 按依赖顺序初始化
func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}
	if err := sc.seedAccounts(); err != nil {
		return fmt.Errorf("seed broker accounts: %w", err)
	}

	notifier, err := notify.New(sc.Config.Notify.Driver, notify.Settings{
		TelegramToken:   sc.Config.Notify.Telegram.Token,
		TelegramBaseURL: sc.Config.Notify.Telegram.BaseURL,
		Timeout:         sc.Config.NotifyTimeout(),
	})
	if err != nil {
		return fmt.Errorf("notifier initialization failed: %w", err)
	}
	sc.notifier = notifier

	sc.broker = tradernet.NewClient(sc.Config.Broker.BaseURL, sc.Config.BrokerTimeout())

	sc.link = venue.NewLink(venue.Options{
		URL:            sc.Config.Venue.WsURL,
		ConnectTimeout: sc.Config.ConnectTimeout(),
		Retry: venue.RetryConfig{
			MaxAttempts: sc.Config.Venue.ReconnectMaxAttempts,
			BaseDelay:   sc.Config.ReconnectBaseDelay(),
		},
		DispatchWorkers: sc.Config.Venue.DispatchWorkers,
		DispatchBuffer:  sc.Config.Venue.DispatchBuffer,
	})
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing venue link")
		return sc.link.Close()
	})

	sc.app = container.New(container.Deps{
		Store:    sc.store,
		Sink:     sc.sink,
		Venue:    sc.link,
		Broker:   sc.broker,
		Notifier: sc.notifier,
		Fetch: service.FetchOptions{
			Timeout:    sc.Config.QuoteTimeout(),
			RequireAll: sc.Config.Quotes.RequireAll,
		},
		Subscriptions: service.SubscriptionOptions{
			PollParallelism: sc.Config.Subscriptions.PollParallelism,
			RefreshInterval: sc.Config.RefreshInterval(),
		},
		AlertCooldown: sc.Config.AlertCooldown(),
	})

	// listener 顺序：先落库，再评估告警
	sc.removeListeners = sc.app.RegisterListeners()
	sc.link.OnAuthenticated(sc.app.SubscriptionService().HandleAuthenticated)

	log.Info().
		Str("notifier", sc.notifier.Name()).
		Str("ws_url", sc.Config.Venue.WsURL).
		Msg("✓ All components initialized")
	return nil
}

// initializeStorage: sqlite (或内存) 作为主存储，redis/postgres 只接收价格与告警事件
func (sc *ServiceContext) initializeStorage() error {
	var sinks []port.PriceSink

	if sc.Config.Storage.SQLite.Enabled {
		repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite repo creation failed: %w", err)
		}
		sc.store = repo
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", sc.Config.Storage.SQLite.Path).Msg("✓ SQLite initialized")
	} else {
		sc.store = memory.NewStore()
		log.Warn().Msg("sqlite disabled, state is kept in memory only")
	}
	sinks = append(sinks, sc.store)

	if sc.Config.Storage.Redis.Enabled {
		repo, err := sc.initRedis()
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		sinks = append(sinks, repo)
	}

	if sc.Config.Storage.Postgres.Enabled {
		repo, err := postgresrepo.New(sc.Config.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres initialization failed: %w", err)
		}
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		sinks = append(sinks, repo)
		log.Info().Msg("✓ Postgres initialized")
	}

	if len(sinks) == 1 {
		sc.sink = sc.store
	} else {
		sc.sink = compositerepo.New(sinks...)
	}
	return nil
}

func (sc *ServiceContext) initRedis() (*redisrepo.Repo, error) {
	rc := sc.Config.Storage.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})
	log.Info().Str("addr", rc.Addr).Int("db", rc.DB).Msg("✓ Redis initialized")

	return redisrepo.New(rdb, rc.Prefix, sc.Config.RedisTTL(), rc.AlertStream, rc.AlertChan), nil
}

// seedAccounts 把配置文件中的 broker 账户写入存储
func (sc *ServiceContext) seedAccounts() error {
	for _, acc := range sc.Config.Broker.Accounts {
		err := sc.store.SaveAccount(sc.Ctx, model.BrokerAccount{
			UserID:    acc.UserID,
			APIKey:    acc.APIKey,
			SecretKey: acc.SecretKey,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// App 返回应用层容器
func (sc *ServiceContext) App() *container.Container {
	return sc.app
}

// Link 返回 venue 连接
func (sc *ServiceContext) Link() *venue.Link {
	return sc.link
}

// Connect authenticates the venue link with the configured session token.
func (sc *ServiceContext) Connect(ctx context.Context) error {
	token := sc.Config.Venue.SessionToken
	if token == "" {
		return ErrNoSessionToken
	}
	return sc.link.Connect(ctx, token)
}

// Run connects and keeps subscriptions reconciled until ctx is done. A
// failed first connect is not fatal: the link keeps retrying and stored
// prices stay readable.
func (sc *ServiceContext) Run(ctx context.Context) error {
	if err := sc.Connect(ctx); err != nil {
		if errors.Is(err, ErrNoSessionToken) {
			return err
		}
		log.Error().Err(err).Msg("venue connect failed, continuing with stored prices")
	}

	sc.app.SubscriptionService().Run(ctx)
	<-ctx.Done()
	return nil
}

// Close 按照相反的顺序关闭所有资源
func (sc *ServiceContext) Close() error {
	if sc.removeListeners != nil {
		sc.removeListeners()
		sc.removeListeners = nil
	}
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
