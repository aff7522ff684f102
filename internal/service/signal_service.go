package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"hydra-signals/internal/domain"
	"hydra-signals/internal/signal"

	"go.opentelemetry.io/otel/trace"
)

type SignalStore interface {
	FindRecentMatch(ctx context.Context, ticker, timeframe string, since time.Time) (*domain.Signal, error)
	CreateSignal(ctx context.Context, s domain.Signal) (domain.Signal, error)
	RefreshSignal(ctx context.Context, s *domain.Signal) error
	ListActiveSignals(ctx context.Context) ([]domain.Signal, error)
	UpdateSignalStatus(ctx context.Context, id int64, status domain.Status, currentPrice float64) error
	RefreshPrices(ctx context.Context, signals []domain.Signal) error
}

type ErrorSink interface {
	Log(ctx context.Context, source, message string) error
}

// BatchResult summarizes one SaveObservations call. Total counts every
// observation handed in, including the ones skipped or rejected.
type BatchResult struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`

	// CreatedSignals are the rows inserted by this batch, used downstream
	// for notifications.
	CreatedSignals []domain.Signal `json:"-"`
}

// ValidationResult summarizes one pass of the execution state machine over
// the open signals.
type ValidationResult struct {
	Checked   int             `json:"checked"`
	EntryHits int             `json:"entry_hits"`
	TPHits    int             `json:"tp_hits"`
	SLHits    int             `json:"sl_hits"`
	Changed   []domain.Signal `json:"-"`
}

// SignalService owns signal persistence semantics: deduplication against the
// freshness window on the write path, and execution-state transitions on the
// price path.
type SignalService struct {
	store           SignalStore
	errors          ErrorSink
	tracer          trace.Tracer
	freshnessWindow time.Duration

	now func() time.Time
}

func NewSignalService(store SignalStore, errors ErrorSink, tracer trace.Tracer, freshnessWindow time.Duration) *SignalService {
	if freshnessWindow <= 0 {
		freshnessWindow = 30 * time.Minute
	}
	return &SignalService{
		store:           store,
		errors:          errors,
		tracer:          tracer,
		freshnessWindow: freshnessWindow,
		now:             time.Now,
	}
}

// SaveObservations deduplicates and persists a batch. An observation matching
// an open row for the same ticker and timeframe within the freshness window
// refreshes that row's mutable fields; otherwise a new row is created. HOLD
// observations are skipped silently, malformed ones are rejected per item so
// the rest of the batch still lands.
func (s *SignalService) SaveObservations(ctx context.Context, observations []domain.Observation) BatchResult {
	ctx, span := s.tracer.Start(ctx, "signal-service.save-observations")
	defer span.End()

	var result BatchResult
	since := s.now().UTC().Add(-s.freshnessWindow)

	for _, obs := range observations {
		result.Total++

		if obs.Direction == domain.DirectionHold {
			result.Skipped++
			continue
		}
		if err := validateObservation(obs); err != nil {
			s.reject(ctx, &result, obs, err)
			continue
		}

		match, err := s.store.FindRecentMatch(ctx, obs.Ticker, obs.Timeframe, since)
		if err != nil {
			s.reject(ctx, &result, obs, fmt.Errorf("lookup: %w", err))
			continue
		}

		if match == nil {
			if obs.Category == domain.CategoryCorrection {
				// A correction without a live main signal has nothing to
				// attach to.
				log.Printf("dropping orphan correction for %s %s", obs.Ticker, obs.Timeframe)
				result.Skipped++
				continue
			}
			created := domain.Signal{
				Ticker:       obs.Ticker,
				Timeframe:    obs.Timeframe,
				Direction:    obs.Direction,
				EntryPrice:   obs.EntryPrice,
				TakeProfit:   obs.TakeProfit,
				StopLoss:     obs.StopLoss,
				Confidence:   obs.Confidence,
				RiskReward:   obs.RiskReward,
				CurrentPrice: obs.CurrentPrice,
				Status:       domain.StatusNew,
				IsMainSignal: true,
				Correction:   obs.Correction,
			}
			inserted, err := s.store.CreateSignal(ctx, created)
			if err != nil {
				s.reject(ctx, &result, obs, fmt.Errorf("create: %w", err))
				continue
			}
			result.Created++
			result.CreatedSignals = append(result.CreatedSignals, inserted)
			continue
		}

		mergeObservation(match, obs)
		if err := s.store.RefreshSignal(ctx, match); err != nil {
			s.reject(ctx, &result, obs, fmt.Errorf("refresh: %w", err))
			continue
		}
		result.Updated++
	}

	return result
}

// mergeObservation folds an observation into an existing open row. Only the
// mutable fields move: current price, confidence and the correction
// sub-record. Entry, exits and direction stay as first reported.
func mergeObservation(match *domain.Signal, obs domain.Observation) {
	if obs.CurrentPrice > 0 {
		match.CurrentPrice = obs.CurrentPrice
	}

	if obs.Category == domain.CategoryCorrection {
		match.Correction = &domain.Correction{
			Direction:  obs.Direction,
			Entry:      obs.EntryPrice,
			TakeProfit: obs.TakeProfit,
			StopLoss:   obs.StopLoss,
			Confidence: obs.Confidence,
		}
		return
	}

	if obs.Confidence != nil {
		match.Confidence = obs.Confidence
	}
	if obs.Correction != nil {
		match.Correction = obs.Correction
	}
}

func validateObservation(obs domain.Observation) error {
	if !obs.Direction.IsActionable() {
		return fmt.Errorf("direction %q is not actionable", obs.Direction)
	}
	if obs.EntryPrice <= 0 {
		return fmt.Errorf("missing entry price")
	}
	if obs.Ticker == "" || obs.Timeframe == "" {
		return fmt.Errorf("missing ticker or timeframe")
	}
	return nil
}

func (s *SignalService) reject(ctx context.Context, result *BatchResult, obs domain.Observation, err error) {
	result.Errors++
	msg := fmt.Sprintf("%s %s: %v", obs.Ticker, obs.Timeframe, err)
	log.Printf("rejected observation %s", msg)
	if s.errors != nil {
		if logErr := s.errors.Log(ctx, "SignalService", msg); logErr != nil {
			log.Printf("failed to record error entry: %v", logErr)
		}
	}
}

// ValidateActiveSignals runs the execution state machine over every open
// signal using the supplied latest prices. A signal whose ticker is missing
// from prices is evaluated against its stored current price.
func (s *SignalService) ValidateActiveSignals(ctx context.Context, prices map[string]float64) (ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.validate-active-signals")
	defer span.End()

	open, err := s.store.ListActiveSignals(ctx)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("list active signals: %w", err)
	}

	var result ValidationResult
	var stale []domain.Signal
	for _, sig := range open {
		price, ok := prices[sig.Ticker]
		if !ok {
			price = sig.CurrentPrice
		}
		if price <= 0 {
			continue
		}
		result.Checked++

		next := signal.NextStatus(sig, price)
		if next == sig.Status {
			if price != sig.CurrentPrice {
				sig.CurrentPrice = price
				stale = append(stale, sig)
			}
			continue
		}

		if err := s.store.UpdateSignalStatus(ctx, sig.ID, next, price); err != nil {
			log.Printf("failed to update status for signal %d: %v", sig.ID, err)
			if s.errors != nil {
				_ = s.errors.Log(ctx, "SignalService", fmt.Sprintf("signal %d: status update failed: %v", sig.ID, err))
			}
			continue
		}

		switch next {
		case domain.StatusEntryHit:
			result.EntryHits++
		case domain.StatusTPHit:
			result.TPHits++
		case domain.StatusSLHit:
			result.SLHits++
		}

		sig.Status = next
		sig.CurrentPrice = price
		result.Changed = append(result.Changed, sig)
	}

	// Rows whose price moved without a transition land in one round trip.
	if err := s.store.RefreshPrices(ctx, stale); err != nil {
		log.Printf("failed to refresh prices for %d signals: %v", len(stale), err)
	}

	return result, nil
}
