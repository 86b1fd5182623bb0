package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"quotewatch/internal/infrastructure/notify"
)

func TestSinkSendMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }

	if err := s.SendMessage(context.Background(), 7, "AAPL is now above $150.0!"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2026-01-02 15:04:05", "chat=7", "AAPL is now above $150.0!"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestSinkRegistered(t *testing.T) {
	n, err := notify.New(DriverName, notify.Settings{})
	if err != nil {
		t.Fatalf("console driver not registered: %v", err)
	}
	if n.Name() != DriverName {
		t.Errorf("unexpected driver %s", n.Name())
	}
}
