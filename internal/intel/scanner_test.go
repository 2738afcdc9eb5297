package intel

import "testing"

func TestTrendingStrength(t *testing.T) {
	if got := TrendingStrength(0); got != 100 {
		t.Errorf("rank 0 should cap at 100, got %.1f", got)
	}
	if got := TrendingStrength(5); got != 85 {
		t.Errorf("rank 5 = %.1f, want 85", got)
	}
	if got := TrendingStrength(9); got != 73 {
		t.Errorf("rank 9 = %.1f, want 73", got)
	}
}

func TestReversalStrength(t *testing.T) {
	if got := ReversalStrength(12); got != 74 {
		t.Errorf("+12%% move = %.1f, want 74", got)
	}
	if got := ReversalStrength(-15); got != 80 {
		t.Errorf("-15%% move = %.1f, want 80", got)
	}
	if got := ReversalStrength(50); got != 95 {
		t.Errorf("extreme move should cap at 95, got %.1f", got)
	}
}

func TestVolumeSpikeStrength(t *testing.T) {
	if got := VolumeSpikeStrength(0.1); got != 70 {
		t.Errorf("10%% ratio = %.1f, want 70", got)
	}
	if got := VolumeSpikeStrength(0.5); got != 90 {
		t.Errorf("heavy ratio should cap at 90, got %.1f", got)
	}
}

func TestWeexSymbolMapping(t *testing.T) {
	sym, ok := WeexSymbol("bitcoin")
	if !ok || sym != "cmt_btcusdt" {
		t.Errorf("bitcoin mapping = %q/%v", sym, ok)
	}
	if _, ok := WeexSymbol("unknown-coin"); ok {
		t.Error("unmapped coin should not resolve")
	}
}
