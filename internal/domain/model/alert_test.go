package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func countFires(a *Alert, prices []float64, start time.Time, step time.Duration) int {
	fires := 0
	now := start
	for _, p := range prices {
		if a.Evaluate(p, now, DefaultAlertCooldown) == TransitionFired {
			fires++
		}
		now = now.Add(step)
	}
	return fires
}

func TestAlertFiresOnceWhilePriceStaysAbove(t *testing.T) {
	a := &Alert{Symbol: "AAPL", Direction: Above, Threshold: 100}
	start := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	if got := countFires(a, []float64{101, 102, 103}, start, 10*time.Minute); got != 1 {
		t.Fatalf("expected 1 fire, got %d", got)
	}
	if a.Bounced {
		t.Errorf("alert should not be bounced")
	}
}

func TestAlertRefiresAfterBounceAndCooldown(t *testing.T) {
	a := &Alert{Symbol: "AAPL", Direction: Above, Threshold: 100}
	start := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	// 每个 tick 间隔 3 分钟：101 触发，99 反弹，103 距上次触发 6 分钟 -> 再次触发
	if got := countFires(a, []float64{90, 101, 99, 103}, start, 3*time.Minute); got != 2 {
		t.Fatalf("expected 2 fires, got %d", got)
	}
	if a.Bounced {
		t.Errorf("re-fire must clear bounced flag")
	}
}

func TestAlertBounceWithinCooldownDoesNotRefire(t *testing.T) {
	a := &Alert{Symbol: "AAPL", Direction: Above, Threshold: 100}
	start := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	if got := countFires(a, []float64{90, 101, 99, 103}, start, time.Minute); got != 1 {
		t.Fatalf("expected 1 fire, got %d", got)
	}
	if !a.Bounced {
		t.Fatalf("expected alert to stay bounced")
	}

	// cooldown elapsed, condition still true -> fires
	later := a.LastFiredAt.Add(DefaultAlertCooldown)
	if tr := a.Evaluate(104, later, DefaultAlertCooldown); tr != TransitionFired {
		t.Fatalf("expected fire after cooldown, got %v", tr)
	}
}

func TestAlertBelowDirection(t *testing.T) {
	a := &Alert{Symbol: "TSLA", Direction: Below, Threshold: 200}
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	if tr := a.Evaluate(200, now, DefaultAlertCooldown); tr != TransitionNone {
		t.Fatalf("price equal to threshold must not trigger below alert, got %v", tr)
	}
	if tr := a.Evaluate(199.9, now, DefaultAlertCooldown); tr != TransitionFired {
		t.Fatalf("expected fire, got %v", tr)
	}
	if tr := a.Evaluate(150, now, DefaultAlertCooldown); tr != TransitionNone {
		t.Fatalf("fired alert must ignore repeated trigger, got %v", tr)
	}
	if tr := a.Evaluate(200, now, DefaultAlertCooldown); tr != TransitionBounced {
		t.Fatalf("expected bounce, got %v", tr)
	}
}

func TestAlertBouncedOnlyAfterFire(t *testing.T) {
	a := &Alert{Symbol: "AAPL", Direction: Above, Threshold: 100}
	now := time.Now()
	for _, p := range []float64{50, 60, 70} {
		a.Evaluate(p, now, DefaultAlertCooldown)
		if a.Bounced {
			t.Fatalf("armed alert must never be bounced")
		}
	}
}

func TestAlertAtThresholdIsNotABounce(t *testing.T) {
	start := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)

	// >100 在 100 仍然成立：保持 Fired，不算反弹
	above := &Alert{Symbol: "AAPL", Direction: Above, Threshold: 100}
	above.Evaluate(101, start, DefaultAlertCooldown)
	if tr := above.Evaluate(100, start.Add(time.Minute), DefaultAlertCooldown); tr != TransitionNone {
		t.Fatalf("price at threshold must not bounce an above alert, got %v", tr)
	}
	if above.Bounced {
		t.Errorf("above alert must stay fired at threshold")
	}

	// <100 在 100 不成立：反弹
	below := &Alert{Symbol: "AAPL", Direction: Below, Threshold: 100}
	below.Evaluate(99, start, DefaultAlertCooldown)
	if tr := below.Evaluate(100, start.Add(time.Minute), DefaultAlertCooldown); tr != TransitionBounced {
		t.Fatalf("price at threshold must bounce a below alert, got %v", tr)
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in        string
		dir       Direction
		threshold float64
		wantErr   bool
	}{
		{in: ">150", dir: Above, threshold: 150},
		{in: "<99.5", dir: Below, threshold: 99.5},
		{in: "=100", wantErr: true},
		{in: ">abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		dir, th, err := ParseCondition(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCondition) {
				t.Errorf("%q: expected ErrInvalidCondition, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.in, err)
			continue
		}
		if dir != tt.dir || th != tt.threshold {
			t.Errorf("%q: got %s %v", tt.in, dir, th)
		}
	}
}

func TestAlertMessageContainsRemovalHandle(t *testing.T) {
	a := &Alert{ID: 42, Symbol: "AAPL", Direction: Above, Threshold: 150}
	msg := a.Message(151.26)
	for _, want := range []string{"AAPL", "above $150.0", "$151.3", "/n_42"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestParseRemoveHandle(t *testing.T) {
	id, err := ParseRemoveHandle(RemoveHandle(42))
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}
	for _, bad := range []string{"/n_", "/n_abc", "/x_1", "/n_-3"} {
		if _, err := ParseRemoveHandle(bad); !errors.Is(err, ErrAlertNotFound) {
			t.Errorf("%q: expected ErrAlertNotFound, got %v", bad, err)
		}
	}
}
