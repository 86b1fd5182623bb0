package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"quotewatch/internal/application/port"
	"quotewatch/internal/infrastructure/notify"
)

const DriverName = "console"

func init() {
	notify.Register(DriverName, func(notify.Settings) (port.Notifier, error) {
		return NewSink(os.Stdout), nil
	})
}

// Sink prints chat messages instead of delivering them. Used for dry runs.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

func NewSink(out io.Writer) *Sink {
	return &Sink{out: out, now: time.Now}
}

func (s *Sink) Name() string { return DriverName }

func (s *Sink) SendMessage(ctx context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "\n%s chat=%d\n%s\n\n", s.now().Format("2006-01-02 15:04:05"), chatID, text)
	return err
}

var _ port.Notifier = (*Sink)(nil)
