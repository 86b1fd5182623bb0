package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAlertCooldown is the minimum gap between two fires of one alert.
const DefaultAlertCooldown = 5 * time.Minute

// Direction 告警方向
type Direction string

const (
	Above Direction = ">"
	Below Direction = "<"
)

func (d Direction) Valid() bool { return d == Above || d == Below }

func (d Direction) Word() string {
	if d == Below {
		return "below"
	}
	return "above"
}

// Sign is the comparison shown to users.
func (d Direction) Sign() string {
	if d == Below {
		return "<"
	}
	return "≥"
}

var (
	ErrInvalidCondition = errors.New("invalid alert condition")
	ErrDuplicateAlert   = errors.New("alert already exists")
	ErrAlertNotFound    = errors.New("alert not found")
)

var conditionPattern = regexp.MustCompile(`^([<>])(\d+(?:\.\d+)?)$`)

// ParseCondition parses ">150" or "<99.5".
func ParseCondition(s string) (Direction, float64, error) {
	m := conditionPattern.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidCondition, s)
	}
	d, err := decimal.NewFromString(m[2])
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidCondition, s)
	}
	threshold, _ := d.Float64()
	return Direction(m[1]), threshold, nil
}

// Alert is a per-chat price alert.
//
//	Armed:   LastFiredAt == nil
//	Fired:   LastFiredAt != nil, !Bounced
//	Bounced: LastFiredAt != nil, Bounced
type Alert struct {
	ID          int64      `json:"id"`
	ChatID      int64      `json:"chat_id"`
	Symbol      string     `json:"symbol"`
	Direction   Direction  `json:"direction"`
	Threshold   float64    `json:"threshold"`
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
	Bounced     bool       `json:"bounced"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SameCondition reports whether b would duplicate a in the same chat.
func (a *Alert) SameCondition(b *Alert) bool {
	return a.ChatID == b.ChatID && a.Symbol == b.Symbol && a.Direction == b.Direction && a.Threshold == b.Threshold
}

// Triggered reports whether price satisfies the alert condition.
func (a *Alert) Triggered(price float64) bool {
	switch a.Direction {
	case Above:
		return price >= a.Threshold
	case Below:
		return price < a.Threshold
	default:
		return false
	}
}

// Transition is the outcome of evaluating one tick against an alert.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionFired
	TransitionBounced
)

// Evaluate advances the alert state machine for price observed at now.
// The caller persists the alert when the result is not TransitionNone and
// sends a message on TransitionFired.
func (a *Alert) Evaluate(price float64, now time.Time, cooldown time.Duration) Transition {
	triggered := a.Triggered(price)

	if triggered && a.canFire(now, cooldown) {
		t := now
		a.LastFiredAt = &t
		a.Bounced = false
		return TransitionFired
	}

	// 已触发且价格回到阈值另一侧：只记录反弹，不发消息
	if !triggered && a.LastFiredAt != nil && !a.Bounced {
		a.Bounced = true
		return TransitionBounced
	}
	return TransitionNone
}

func (a *Alert) canFire(now time.Time, cooldown time.Duration) bool {
	if a.LastFiredAt == nil {
		return true
	}
	return a.Bounced && now.Sub(*a.LastFiredAt) >= cooldown
}

// Message renders the chat notification for a fire at price.
func (a *Alert) Message(price float64) string {
	marker := "🟢"
	if a.Direction == Below {
		marker = "🔴"
	}
	return fmt.Sprintf("%s %s is now %s $%s!\nCurrent price: $%s\n\nRemove this alert: %s",
		marker, a.Symbol, a.Direction.Word(), FormatPrice(a.Threshold), FormatPrice(price), RemoveHandle(a.ID))
}

const removeHandlePrefix = "/n_"

// RemoveHandle is the chat command that removes alert id.
func RemoveHandle(id int64) string {
	return removeHandlePrefix + strconv.FormatInt(id, 10)
}

// ParseRemoveHandle extracts the alert id from "/n_<id>".
func ParseRemoveHandle(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, removeHandlePrefix) {
		return 0, fmt.Errorf("%w: %q", ErrAlertNotFound, s)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(s, removeHandlePrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrAlertNotFound, s)
	}
	return id, nil
}

// Describe renders the alert for listings and command replies.
func (a *Alert) Describe() string {
	return fmt.Sprintf("%s %s $%s", a.Symbol, a.Direction.Sign(), FormatPrice(a.Threshold))
}

// FormatPrice formats with one decimal place.
func FormatPrice(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(1)
}

// AlertEvent records one fire of an alert.
type AlertEvent struct {
	ID        string    `json:"id"`
	AlertID   int64     `json:"alert_id"`
	ChatID    int64     `json:"chat_id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Threshold float64   `json:"threshold"`
	Price     float64   `json:"price"`
	FiredAt   time.Time `json:"fired_at"`
}
