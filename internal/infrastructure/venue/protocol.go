package venue

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"quotewatch/internal/domain/model"
)

// inbound frame types
const (
	frameUserData = "userData"
	frameQuote    = "q"
)

// outbound commands
const (
	cmdQuotes    = "quotes"
	cmdPortfolio = "portfolio"
)

const modeProd = "prod"

var errBadFrame = errors.New("venue: malformed frame")

// frames are JSON arrays: [type, payload]
func decodeFrame(b []byte) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, errBadFrame
	}
	var typ string
	if err := json.Unmarshal(parts[0], &typ); err != nil {
		return "", nil, errBadFrame
	}
	var payload json.RawMessage
	if len(parts) > 1 {
		payload = parts[1]
	}
	return typ, payload, nil
}

type userDataPayload struct {
	Mode string `json:"mode"`
}

// optFloat accepts a JSON number, a numeric string or null.
type optFloat struct {
	V   float64
	Set bool
}

func (f *optFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.V, f.Set = v, true
	return nil
}

type quotePayload struct {
	Symbol             string   `json:"c"`
	BestBid            optFloat `json:"bbp"`
	LastTrade          optFloat `json:"ltp"`
	Delta              optFloat `json:"delta"`
	Theta              optFloat `json:"theta"`
	ContractMultiplier optFloat `json:"contract_multiplier"`
}

// decodeTick turns a "q" payload into a tick. ok is false when the message
// carries neither a usable price nor a greek.
func decodeTick(payload json.RawMessage, now time.Time) (model.Tick, bool, error) {
	var q quotePayload
	if err := json.Unmarshal(payload, &q); err != nil {
		return model.Tick{}, false, err
	}
	sym := strings.TrimSpace(q.Symbol)
	if sym == "" {
		return model.Tick{}, false, nil
	}

	// bid 优先，没有 bid 时用最新成交价
	var price float64
	switch {
	case q.BestBid.Set:
		price = q.BestBid.V
	case q.LastTrade.Set:
		price = q.LastTrade.V
	}
	if model.IsOption(sym) {
		m := q.ContractMultiplier.V
		if !q.ContractMultiplier.Set || m == 0 {
			m = model.DefaultContractMultiplier
		}
		price *= m
	}

	t := model.Tick{Symbol: sym, Price: price, ObservedAt: now}
	if q.Delta.Set {
		d := q.Delta.V
		t.Delta = &d
	}
	if q.Theta.Set {
		th := q.Theta.V
		t.Theta = &th
	}
	if !t.HasPrice() && !t.HasGreeks() {
		return model.Tick{}, false, nil
	}
	return t, true, nil
}

func quotesFrame(symbols []string) ([]byte, error) {
	return json.Marshal([]any{cmdQuotes, symbols})
}

func portfolioFrame() ([]byte, error) {
	return json.Marshal([]any{cmdPortfolio})
}
