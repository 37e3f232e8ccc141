package market

import "testing"

func TestRegistryRoundTrip(t *testing.T) {
	r, err := NewRegistry([]string{"BTC/KRW", "ETH/USDT"})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	m, err := r.Get("BTC/KRW")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m.Code != "KRW-BTC" {
		t.Fatalf("expected code KRW-BTC, got %s", m.Code)
	}
	if m.Quote != "KRW" {
		t.Fatalf("expected quote KRW, got %s", m.Quote)
	}

	back, err := r.ByCode("KRW-BTC")
	if err != nil {
		t.Fatalf("by code: %v", err)
	}
	if back.Symbol != "BTC/KRW" {
		t.Fatalf("expected BTC/KRW, got %s", back.Symbol)
	}
}

func TestRegistryDerivesUnlistedCodes(t *testing.T) {
	r, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	m, err := r.ByCode("SGD-XRP")
	if err != nil {
		t.Fatalf("by code: %v", err)
	}
	if m.Symbol != "XRP/SGD" || m.Quote != "SGD" {
		t.Fatalf("unexpected derived market: %+v", m)
	}
}

func TestRegistryRejectsMalformedSymbols(t *testing.T) {
	if _, err := NewRegistry([]string{"BTCKRW"}); err == nil {
		t.Fatalf("expected error for malformed symbol")
	}
	r, _ := NewRegistry(nil)
	if _, err := r.Get("DOGE/KRW"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
	if _, err := r.ByCode("XRP"); err == nil {
		t.Fatalf("expected error for malformed code")
	}
}

func TestRegistryCodes(t *testing.T) {
	r, _ := NewRegistry([]string{"BTC/KRW", "ETH/KRW"})
	codes, err := r.Codes([]string{"ETH/KRW", "BTC/KRW"})
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	if codes[0] != "KRW-ETH" || codes[1] != "KRW-BTC" {
		t.Fatalf("unexpected codes: %v", codes)
	}
}
