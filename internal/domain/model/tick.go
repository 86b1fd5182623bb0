package model

import (
	"fmt"
	"time"
)

// Tick is one price/greek update for a symbol.
type Tick struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"` // <= 0: no trade price in this message
	Delta      *float64  `json:"delta,omitempty"`
	Theta      *float64  `json:"theta,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

func (t Tick) HasPrice() bool { return t.Price > 0 }

func (t Tick) HasGreeks() bool { return t.Delta != nil || t.Theta != nil }

// Quote is the last known state of a symbol as kept by the price store.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Delta     *float64  `json:"delta,omitempty"`
	Theta     *float64  `json:"theta,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Merge applies t on top of q. A missing price never overwrites a known one;
// greeks update independently.
func (q Quote) Merge(t Tick) Quote {
	q.Symbol = t.Symbol
	if t.HasPrice() {
		q.Price = t.Price
	}
	if t.Delta != nil {
		d := *t.Delta
		q.Delta = &d
	}
	if t.Theta != nil {
		th := *t.Theta
		q.Theta = &th
	}
	q.UpdatedAt = t.ObservedAt
	return q
}

// ConnState 连接状态
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticated
	StateReconnectPending
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReconnectPending:
		return "reconnect_pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionState is a snapshot of the venue link. Attempt and Delay are only
// meaningful in StateReconnectPending.
type ConnectionState struct {
	State   ConnState
	Attempt int
	Delay   time.Duration
}

// BrokerAccount holds the REST credentials of one registered user.
type BrokerAccount struct {
	UserID    int64
	APIKey    string
	SecretKey string
}

// Position is the part of a broker position the subscription set cares about.
type Position struct {
	Symbol           string
	UnderlyingSymbol string
}
