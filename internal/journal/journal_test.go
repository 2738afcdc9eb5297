package journal

import (
	"strconv"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecordAndRecent(t *testing.T) {
	j := New(10, nil, zerolog.Nop())

	j.Record("grid active", map[string]interface{}{"center": 100.0})
	j.Record("position opened", map[string]interface{}{"symbol": "cmt_btcusdt"})

	recent := j.Recent(5)
	if len(recent) != 2 {
		t.Fatalf("got %d entries, want 2", len(recent))
	}
	if recent[0].Message != "position opened" {
		t.Errorf("newest first: got %q", recent[0].Message)
	}
	if recent[1].Data["center"] != 100.0 {
		t.Errorf("data not preserved: %+v", recent[1].Data)
	}
}

func TestBoundedCapacity(t *testing.T) {
	j := New(500, nil, zerolog.Nop())

	for i := 0; i < 600; i++ {
		j.Record("entry "+strconv.Itoa(i), nil)
	}
	if j.Len() != 500 {
		t.Errorf("journal holds %d entries, want 500", j.Len())
	}

	recent := j.Recent(1)
	if recent[0].Message != "entry 599" {
		t.Errorf("newest entry = %q, want entry 599", recent[0].Message)
	}
	all := j.Recent(0)
	if oldest := all[len(all)-1].Message; oldest != "entry 100" {
		t.Errorf("oldest retained = %q, want entry 100", oldest)
	}
}

func TestRecentLimit(t *testing.T) {
	j := New(10, nil, zerolog.Nop())
	for i := 0; i < 5; i++ {
		j.Record("m", nil)
	}
	if got := len(j.Recent(3)); got != 3 {
		t.Errorf("Recent(3) returned %d", got)
	}
	if got := len(j.Recent(100)); got != 5 {
		t.Errorf("Recent(100) returned %d, want all 5", got)
	}
}
