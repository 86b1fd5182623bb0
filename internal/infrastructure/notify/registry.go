package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"quotewatch/internal/application/port"
)

// Settings is what notifier drivers may need from configuration.
type Settings struct {
	TelegramToken   string
	TelegramBaseURL string
	Timeout         time.Duration
}

// Factory builds a notifier from settings.
type Factory func(s Settings) (port.Notifier, error)

// registry maps driver names to factories
var registry = make(map[string]Factory)

// Register 注册一个 notifier driver，由各 driver 包的 init() 调用
func Register(driver string, factory Factory) {
	if factory == nil {
		log.Warn().Str("driver", driver).Msg("invalid notifier factory")
		return
	}
	if _, exists := registry[driver]; exists {
		log.Warn().Str("driver", driver).Msg("notifier factory already registered, overwriting")
	}
	registry[driver] = factory
	log.Debug().Str("driver", driver).Msg("notifier factory registered")
}

func Get(driver string) (Factory, bool) {
	factory, ok := registry[driver]
	return factory, ok
}

// New builds the notifier registered under driver.
func New(driver string, s Settings) (port.Notifier, error) {
	factory, ok := Get(driver)
	if !ok {
		return nil, fmt.Errorf("notifier driver %q not registered (have %v)", driver, Drivers())
	}
	return factory(s)
}

func Drivers() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
