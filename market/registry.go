// Package market resolves human-readable symbols to and from the venue's
// native instrument codes. Upbit identifies a market as QUOTE-BASE
// ("KRW-BTC" for BTC/KRW).
package market

import (
	"fmt"
	"sort"
	"strings"
)

// Market describes a single tradable pair.
type Market struct {
	Symbol string // unified form, BASE/QUOTE
	Code   string // venue form, QUOTE-BASE
	Base   string
	Quote  string
}

// Registry holds the known markets. It is built once at client construction
// and read-only afterwards.
type Registry struct {
	bySymbol map[string]Market
	byCode   map[string]Market
}

// NewRegistry builds a registry from unified symbols ("BTC/KRW"). Symbols
// that do not split into base and quote are rejected.
func NewRegistry(symbols []string) (*Registry, error) {
	r := &Registry{
		bySymbol: make(map[string]Market, len(symbols)),
		byCode:   make(map[string]Market, len(symbols)),
	}
	for _, sym := range symbols {
		base, quote, ok := strings.Cut(sym, "/")
		if !ok || base == "" || quote == "" {
			return nil, fmt.Errorf("invalid market symbol %q", sym)
		}
		m := Market{
			Symbol: sym,
			Code:   quote + "-" + base,
			Base:   base,
			Quote:  quote,
		}
		r.bySymbol[m.Symbol] = m
		r.byCode[m.Code] = m
	}
	return r, nil
}

// Get returns the market for a unified symbol.
func (r *Registry) Get(symbol string) (Market, error) {
	m, ok := r.bySymbol[symbol]
	if !ok {
		return Market{}, fmt.Errorf("unknown market symbol %q", symbol)
	}
	return m, nil
}

// ByCode returns the market for a venue instrument code. Codes for markets
// the registry was not built with are derived structurally so private
// updates for unlisted pairs still normalize.
func (r *Registry) ByCode(code string) (Market, error) {
	if m, ok := r.byCode[code]; ok {
		return m, nil
	}
	quote, base, ok := strings.Cut(code, "-")
	if !ok || base == "" || quote == "" {
		return Market{}, fmt.Errorf("unknown instrument code %q", code)
	}
	return Market{Symbol: base + "/" + quote, Code: code, Base: base, Quote: quote}, nil
}

// Codes maps unified symbols to venue instrument codes.
func (r *Registry) Codes(symbols []string) ([]string, error) {
	codes := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		m, err := r.Get(sym)
		if err != nil {
			return nil, err
		}
		codes = append(codes, m.Code)
	}
	return codes, nil
}

// Symbols lists all registered symbols in sorted order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for sym := range r.bySymbol {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
