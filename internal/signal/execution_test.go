package signal

import (
	"testing"

	"hydra-signals/internal/domain"
)

func f(v float64) *float64 { return &v }

func TestEntryFillAsymmetry(t *testing.T) {
	long := domain.Signal{Direction: domain.DirectionLong, EntryPrice: 100, Status: domain.StatusNew}

	if got := NextStatus(long, 100); got != domain.StatusEntryHit {
		t.Fatalf("LONG at entry price: expected entry_hit, got %s", got)
	}
	if got := NextStatus(long, 99.5); got != domain.StatusEntryHit {
		t.Fatalf("LONG below entry: expected entry_hit, got %s", got)
	}
	if got := NextStatus(long, 100.5); got != domain.StatusNew {
		t.Fatalf("LONG above entry: expected new, got %s", got)
	}

	short := domain.Signal{Direction: domain.DirectionShort, EntryPrice: 100, Status: domain.StatusNew}

	if got := NextStatus(short, 100); got != domain.StatusEntryHit {
		t.Fatalf("SHORT at entry price: expected entry_hit, got %s", got)
	}
	if got := NextStatus(short, 100.5); got != domain.StatusEntryHit {
		t.Fatalf("SHORT above entry: expected entry_hit, got %s", got)
	}
	if got := NextStatus(short, 99.5); got != domain.StatusNew {
		t.Fatalf("SHORT below entry: expected new, got %s", got)
	}
}

func TestStopLossPriority(t *testing.T) {
	long := domain.Signal{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		TakeProfit: f(110),
		StopLoss:   f(90),
		Status:     domain.StatusActive,
	}
	if got := NextStatus(long, 89); got != domain.StatusSLHit {
		t.Fatalf("expected sl_hit at 89, got %s", got)
	}

	// Pathological thresholds where a single price satisfies both exits:
	// the conservative outcome must win.
	inverted := domain.Signal{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		TakeProfit: f(95),
		StopLoss:   f(105),
		Status:     domain.StatusActive,
	}
	if got := NextStatus(inverted, 100); got != domain.StatusSLHit {
		t.Fatalf("expected sl_hit when both exits fire, got %s", got)
	}
}

func TestExitConditionsByDirection(t *testing.T) {
	long := domain.Signal{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		TakeProfit: f(110),
		StopLoss:   f(90),
		Status:     domain.StatusEntryHit,
	}
	if got := NextStatus(long, 110.2); got != domain.StatusTPHit {
		t.Fatalf("LONG tp: expected tp_hit, got %s", got)
	}
	if got := NextStatus(long, 105); got != domain.StatusActive {
		t.Fatalf("LONG between exits: expected active, got %s", got)
	}

	short := domain.Signal{
		Direction:  domain.DirectionShort,
		EntryPrice: 100,
		TakeProfit: f(90),
		StopLoss:   f(110),
		Status:     domain.StatusActive,
	}
	if got := NextStatus(short, 89.9); got != domain.StatusTPHit {
		t.Fatalf("SHORT tp: expected tp_hit, got %s", got)
	}
	if got := NextStatus(short, 110.1); got != domain.StatusSLHit {
		t.Fatalf("SHORT sl: expected sl_hit, got %s", got)
	}
}

func TestMissingExitLevelsDisableChecks(t *testing.T) {
	noStops := domain.Signal{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		Status:     domain.StatusEntryHit,
	}
	if got := NextStatus(noStops, 1); got != domain.StatusActive {
		t.Fatalf("no exit levels: expected active, got %s", got)
	}
	if got := NextStatus(noStops, 100000); got != domain.StatusActive {
		t.Fatalf("no exit levels: expected active, got %s", got)
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	for _, status := range []domain.Status{domain.StatusTPHit, domain.StatusSLHit, domain.StatusClosed} {
		s := domain.Signal{
			Direction:  domain.DirectionLong,
			EntryPrice: 100,
			TakeProfit: f(110),
			StopLoss:   f(90),
			Status:     status,
		}
		for _, price := range []float64{1, 100, 200} {
			if got := NextStatus(s, price); got != status {
				t.Fatalf("terminal %s at price %.0f: expected no transition, got %s", status, price, got)
			}
		}
	}
}

func TestStatusOnlyAdvancesForward(t *testing.T) {
	rank := map[domain.Status]int{
		domain.StatusNew:      0,
		domain.StatusEntryHit: 1,
		domain.StatusActive:   2,
		domain.StatusTPHit:    3,
		domain.StatusSLHit:    3,
	}

	s := domain.Signal{
		Direction:  domain.DirectionLong,
		EntryPrice: 100,
		TakeProfit: f(110),
		StopLoss:   f(90),
		Status:     domain.StatusNew,
	}

	prices := []float64{120, 99, 105, 95, 103, 111, 50, 200}
	for _, price := range prices {
		next := NextStatus(s, price)
		if rank[next] < rank[s.Status] {
			t.Fatalf("status moved backward: %s -> %s at price %.0f", s.Status, next, price)
		}
		s.Status = next
	}
}

func TestFullLifecycleLong(t *testing.T) {
	s := domain.Signal{
		Direction:  domain.DirectionLong,
		EntryPrice: 20.0,
		TakeProfit: f(22.0),
		StopLoss:   f(19.0),
		Status:     domain.StatusNew,
	}

	s.Status = NextStatus(s, 20.5)
	if s.Status != domain.StatusNew {
		t.Fatalf("price above entry: expected new, got %s", s.Status)
	}

	s.Status = NextStatus(s, 19.8)
	if s.Status != domain.StatusEntryHit {
		t.Fatalf("expected entry_hit at 19.8, got %s", s.Status)
	}

	s.Status = NextStatus(s, 21.0)
	if s.Status != domain.StatusActive {
		t.Fatalf("expected active at 21.0, got %s", s.Status)
	}

	s.Status = NextStatus(s, 22.1)
	if s.Status != domain.StatusTPHit {
		t.Fatalf("expected tp_hit at 22.1, got %s", s.Status)
	}
}
