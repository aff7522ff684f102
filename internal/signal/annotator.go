package signal

import (
	"fmt"

	"hydra-signals/internal/domain"
)

const (
	DefaultHighConfidenceThreshold = 90.0
	DefaultLowConfidenceThreshold  = 50.0
	DefaultTrendConflictThreshold  = 95.0
)

// Annotator attaches advisory confidence warnings to parsed observations.
type Annotator struct {
	highThreshold  float64
	lowThreshold   float64
	trendThreshold float64
}

func NewAnnotator(high, low, trend float64) *Annotator {
	if high <= 0 {
		high = DefaultHighConfidenceThreshold
	}
	if low <= 0 {
		low = DefaultLowConfidenceThreshold
	}
	if trend <= 0 {
		trend = DefaultTrendConflictThreshold
	}
	return &Annotator{highThreshold: high, lowThreshold: low, trendThreshold: trend}
}

// Annotate returns the observations with warnings attached. It never mutates
// direction, prices or any other field, and never errors: an observation with
// no confidence simply gets no warnings.
func (a *Annotator) Annotate(observations []domain.Observation) []domain.Observation {
	out := make([]domain.Observation, len(observations))
	copy(out, observations)

	for i := range out {
		conf := out[i].Confidence
		if conf == nil {
			continue
		}

		var warnings []domain.Warning

		// Very high model confidence is treated as a caution, not a green light.
		if *conf >= a.highThreshold {
			warnings = append(warnings, domain.Warning{
				Type:     domain.WarningHighConfidence,
				Message:  fmt.Sprintf("high confidence %.0f%%, treat with caution", *conf),
				Severity: domain.SeverityWarning,
			})
		} else if *conf < a.lowThreshold {
			warnings = append(warnings, domain.Warning{
				Type:     domain.WarningLowConfidence,
				Message:  fmt.Sprintf("weak signal: %.0f%% confidence", *conf),
				Severity: domain.SeverityInfo,
			})
		}

		// Placeholder heuristic for disagreement with a longer-horizon trend.
		if *conf > a.trendThreshold {
			warnings = append(warnings, domain.Warning{
				Type:     domain.WarningTrendConflict,
				Message:  "possible counter-trend signal, needs review",
				Severity: domain.SeverityWarning,
			})
		}

		out[i].Warnings = warnings
	}

	return out
}
