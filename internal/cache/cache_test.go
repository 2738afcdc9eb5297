package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestCache() *Cache {
	return New(Config{Enabled: false}, zerolog.Nop())
}

func TestMemoryFallbackRoundTrip(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	type payload struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}

	if err := c.SetJSON(ctx, "ticker:btc", payload{Symbol: "BTC", Price: 65000}, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var got payload
	if !c.GetJSON(ctx, "ticker:btc", &got) {
		t.Fatal("expected cache hit")
	}
	if got.Symbol != "BTC" || got.Price != 65000 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestMiss(t *testing.T) {
	c := newTestCache()
	var dest map[string]string
	if c.GetJSON(context.Background(), "missing", &dest) {
		t.Error("expected miss for unknown key")
	}
}

func TestExpiry(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	if err := c.SetJSON(ctx, "k", "v", -time.Second); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var dest string
	if c.GetJSON(ctx, "k", &dest) {
		t.Error("expired entry should miss")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache()
	ctx := context.Background()

	if err := c.SetJSON(ctx, "k", 42, time.Minute); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	c.Delete(ctx, "k")
	var dest int
	if c.GetJSON(ctx, "k", &dest) {
		t.Error("deleted entry should miss")
	}
}
