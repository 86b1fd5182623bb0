package model

import (
	"regexp"
	"sort"
	"strings"
)

// OptionPrefix marks option tickers on the venue (e.g. "+AAPL.16JAN2026.C200").
const OptionPrefix = "+"

// DefaultContractMultiplier 期权合约乘数（venue 未给出时使用）
const DefaultContractMultiplier = 100.0

var optionSeries = regexp.MustCompile(`\.[CP]\d|\d[CP]\d`)

// IsOption reports whether the venue quotes sym per share of an option contract.
func IsOption(sym string) bool {
	return strings.HasPrefix(sym, OptionPrefix)
}

// LooksLikeOption is the looser check used before subscribing: it also matches
// option series codes that come from broker positions without the "+" prefix.
func LooksLikeOption(sym string) bool {
	return IsOption(sym) || optionSeries.MatchString(sym)
}

// NormalizeSymbol trims and upper-cases a ticker. Option prefix is kept.
func NormalizeSymbol(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// SymbolSet is an insertion-ordered set of tickers.
type SymbolSet struct {
	order []string
	seen  map[string]struct{}
}

func NewSymbolSet(symbols ...string) *SymbolSet {
	s := &SymbolSet{seen: make(map[string]struct{}, len(symbols))}
	s.Add(symbols...)
	return s
}

// Add inserts symbols, skipping blanks and duplicates.
func (s *SymbolSet) Add(symbols ...string) {
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if _, ok := s.seen[sym]; ok {
			continue
		}
		s.seen[sym] = struct{}{}
		s.order = append(s.order, sym)
	}
}

func (s *SymbolSet) Has(sym string) bool {
	_, ok := s.seen[sym]
	return ok
}

func (s *SymbolSet) Len() int { return len(s.order) }

// Slice returns a copy in insertion order.
func (s *SymbolSet) Slice() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// AnyOption reports whether any member looks like an option.
func (s *SymbolSet) AnyOption() bool {
	for _, sym := range s.order {
		if LooksLikeOption(sym) {
			return true
		}
	}
	return false
}

// SameSymbols compares two symbol lists as sets.
func SameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
