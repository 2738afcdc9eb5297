package grid

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/weex"
)

func newTestEngine(t *testing.T) (*Engine, *weex.MockClient) {
	t.Helper()
	mock := weex.NewMockClient(1000)
	limits := risk.DefaultLimits()
	limits.MaxTotalExposureUSD = 10000
	limits.MaxPositionSizeUSD = 1000
	riskMgr := risk.NewManager(limits, zerolog.Nop())
	return NewEngine(DefaultConfig(), "cmt_btcusdt", mock, riskMgr, zerolog.Nop()), mock
}

func TestComputeLadderSymmetry(t *testing.T) {
	ladder := ComputeLadder(100, 3, 0.5)
	wantBuys := []float64{99.5, 99, 98.5}
	wantSells := []float64{100.5, 101, 101.5}

	for i := range wantBuys {
		if math.Abs(ladder.Buys[i]-wantBuys[i]) > 1e-9 {
			t.Errorf("buy[%d] = %.4f, want %.4f", i, ladder.Buys[i], wantBuys[i])
		}
		if math.Abs(ladder.Sells[i]-wantSells[i]) > 1e-9 {
			t.Errorf("sell[%d] = %.4f, want %.4f", i, ladder.Sells[i], wantSells[i])
		}
	}

	// Each rung pair is equidistant from the center.
	for i := range ladder.Buys {
		below := ladder.Center - ladder.Buys[i]
		above := ladder.Sells[i] - ladder.Center
		if math.Abs(below-above) > 1e-9 {
			t.Errorf("rung %d asymmetric: %.6f vs %.6f", i, below, above)
		}
	}
}

func TestDeviation(t *testing.T) {
	if got := Deviation(102, 100); math.Abs(got-2) > 1e-9 {
		t.Errorf("deviation = %.4f, want 2", got)
	}
	if got := Deviation(98, 100); math.Abs(got-2) > 1e-9 {
		t.Errorf("deviation should be absolute, got %.4f", got)
	}
	if got := Deviation(100, 0); got != 0 {
		t.Errorf("zero center should yield 0, got %.4f", got)
	}
}

func TestInitialPlacement(t *testing.T) {
	engine, mock := newTestEngine(t)

	if engine.State() != StateNoGrid {
		t.Fatalf("fresh engine state = %s", engine.State())
	}
	if err := engine.Tick(100); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if engine.State() != StateActive {
		t.Errorf("state = %s, want ACTIVE", engine.State())
	}
	if engine.Center() != 100 {
		t.Errorf("center = %.2f, want 100", engine.Center())
	}
	if got := engine.OpenOrderCount(); got != 6 {
		t.Errorf("resting orders = %d, want 6", got)
	}

	// All rungs are limit orders with client IDs.
	for _, o := range mock.Orders() {
		if o.Type != weex.OrderLimit {
			t.Errorf("grid rung should be a limit order, got %s", o.Type)
		}
		if o.ClientID == "" {
			t.Error("grid rung should carry a client order ID")
		}
	}
}

func TestNoRebalanceWithinThreshold(t *testing.T) {
	engine, mock := newTestEngine(t)
	if err := engine.Tick(100); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	before := len(mock.Orders())

	if err := engine.Tick(101.5); err != nil { // 1.5% < 2%
		t.Fatalf("Tick: %v", err)
	}
	if engine.Center() != 100 {
		t.Errorf("center moved without breaching threshold: %.2f", engine.Center())
	}
	if len(mock.Orders()) != before {
		t.Error("no new orders should be placed inside the threshold")
	}
}

func TestRebalanceRecentersLadder(t *testing.T) {
	engine, mock := newTestEngine(t)
	if err := engine.Tick(100); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if err := engine.Tick(103); err != nil { // 3% > 2%
		t.Fatalf("rebalance tick: %v", err)
	}
	if engine.State() != StateActive {
		t.Errorf("state after rebalance = %s, want ACTIVE", engine.State())
	}
	if engine.Center() != 103 {
		t.Errorf("center = %.2f, want 103", engine.Center())
	}
	// Old ladder cancelled, new one resting: 6 open out of 12 placed.
	if got := mock.OpenOrderCount(); got != 6 {
		t.Errorf("open orders after rebalance = %d, want 6", got)
	}
	if got := len(mock.Orders()); got != 12 {
		t.Errorf("total placed orders = %d, want 12", got)
	}
}

func TestRiskGateBlocksPlacement(t *testing.T) {
	mock := weex.NewMockClient(1000)
	limits := risk.DefaultLimits()
	limits.MaxPositionSizeUSD = 10 // below 6 rungs * $20
	riskMgr := risk.NewManager(limits, zerolog.Nop())
	engine := NewEngine(DefaultConfig(), "cmt_btcusdt", mock, riskMgr, zerolog.Nop())

	if err := engine.Tick(100); err == nil {
		t.Fatal("risk gate should block the ladder")
	}
	if engine.State() != StateNoGrid {
		t.Errorf("state = %s, want NO_GRID after rejection", engine.State())
	}
	if len(mock.Orders()) != 0 {
		t.Error("no orders should reach the exchange")
	}
}

func TestShutdownCancelsAll(t *testing.T) {
	engine, mock := newTestEngine(t)
	if err := engine.Tick(100); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	engine.Shutdown()
	if engine.State() != StateNoGrid {
		t.Errorf("state after shutdown = %s", engine.State())
	}
	if got := mock.OpenOrderCount(); got != 0 {
		t.Errorf("open orders after shutdown = %d, want 0", got)
	}
}
