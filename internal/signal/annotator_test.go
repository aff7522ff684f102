package signal

import (
	"testing"

	"hydra-signals/internal/domain"
)

func newTestAnnotator() *Annotator {
	return NewAnnotator(
		DefaultHighConfidenceThreshold,
		DefaultLowConfidenceThreshold,
		DefaultTrendConflictThreshold,
	)
}

func TestAnnotateHighConfidence(t *testing.T) {
	annotator := newTestAnnotator()

	out := annotator.Annotate([]domain.Observation{{
		Ticker:     "AVAX",
		Timeframe:  "1h",
		Direction:  domain.DirectionLong,
		EntryPrice: 20,
		Confidence: f(91),
	}})

	if len(out) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(out))
	}
	if len(out[0].Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", out[0].Warnings)
	}
	w := out[0].Warnings[0]
	if w.Type != domain.WarningHighConfidence || w.Severity != domain.SeverityWarning {
		t.Fatalf("unexpected warning: %+v", w)
	}
}

func TestAnnotateLowConfidence(t *testing.T) {
	annotator := newTestAnnotator()

	out := annotator.Annotate([]domain.Observation{{
		Ticker:     "BTC",
		Timeframe:  "15m",
		Direction:  domain.DirectionShort,
		EntryPrice: 50000,
		Confidence: f(42),
	}})

	if len(out[0].Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %+v", out[0].Warnings)
	}
	w := out[0].Warnings[0]
	if w.Type != domain.WarningLowConfidence || w.Severity != domain.SeverityInfo {
		t.Fatalf("unexpected warning: %+v", w)
	}
}

func TestAnnotateTrendConflictStacksWithHighConfidence(t *testing.T) {
	annotator := newTestAnnotator()

	out := annotator.Annotate([]domain.Observation{{
		Ticker:     "ETH",
		Timeframe:  "4h",
		Direction:  domain.DirectionLong,
		EntryPrice: 3000,
		Confidence: f(97),
	}})

	if len(out[0].Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", out[0].Warnings)
	}
	types := map[string]bool{}
	for _, w := range out[0].Warnings {
		types[w.Type] = true
	}
	if !types[domain.WarningHighConfidence] || !types[domain.WarningTrendConflict] {
		t.Fatalf("missing expected warning types: %+v", out[0].Warnings)
	}
}

func TestAnnotateUnknownConfidenceYieldsNoWarnings(t *testing.T) {
	annotator := newTestAnnotator()

	out := annotator.Annotate([]domain.Observation{{
		Ticker:     "SOL",
		Timeframe:  "1d",
		Direction:  domain.DirectionLong,
		EntryPrice: 150,
	}})

	if len(out[0].Warnings) != 0 {
		t.Fatalf("expected no warnings, got %+v", out[0].Warnings)
	}
}

func TestAnnotateNeverMutatesInput(t *testing.T) {
	annotator := newTestAnnotator()

	in := []domain.Observation{{
		Ticker:     "BNB",
		Timeframe:  "1h",
		Direction:  domain.DirectionShort,
		EntryPrice: 600,
		Confidence: f(92),
	}}

	out := annotator.Annotate(in)

	if len(in[0].Warnings) != 0 {
		t.Fatalf("input mutated: %+v", in[0].Warnings)
	}
	if out[0].Direction != domain.DirectionShort || out[0].EntryPrice != 600 {
		t.Fatalf("observation fields changed: %+v", out[0])
	}
	if out[0].Confidence != in[0].Confidence {
		t.Fatal("confidence pointer changed")
	}
}

func TestAnnotateMidRangeConfidenceIsClean(t *testing.T) {
	annotator := newTestAnnotator()

	out := annotator.Annotate([]domain.Observation{{
		Ticker:     "BTC",
		Timeframe:  "1h",
		Direction:  domain.DirectionLong,
		EntryPrice: 50000,
		Confidence: f(75),
	}})

	if len(out[0].Warnings) != 0 {
		t.Fatalf("expected no warnings for 75%%, got %+v", out[0].Warnings)
	}
}
