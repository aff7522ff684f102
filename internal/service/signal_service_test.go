package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"hydra-signals/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

func noopTracer() trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer("test")
}

type statusUpdate struct {
	id     int64
	status domain.Status
	price  float64
}

type stubStore struct {
	match      *domain.Signal
	matchErr   error
	created    []domain.Signal
	createErr  error
	refreshed  []domain.Signal
	refreshErr error
	active     []domain.Signal
	activeErr  error
	updates    []statusUpdate
	updateErr  error
	priceOnly  []domain.Signal

	nextID int64
}

func (s *stubStore) FindRecentMatch(ctx context.Context, ticker, timeframe string, since time.Time) (*domain.Signal, error) {
	if s.matchErr != nil {
		return nil, s.matchErr
	}
	if s.match != nil && s.match.Ticker == ticker && s.match.Timeframe == timeframe {
		copied := *s.match
		return &copied, nil
	}
	return nil, nil
}

func (s *stubStore) CreateSignal(ctx context.Context, sig domain.Signal) (domain.Signal, error) {
	if s.createErr != nil {
		return domain.Signal{}, s.createErr
	}
	s.nextID++
	sig.ID = s.nextID
	sig.CreatedAt = time.Now().UTC()
	s.created = append(s.created, sig)
	return sig, nil
}

func (s *stubStore) RefreshSignal(ctx context.Context, sig *domain.Signal) error {
	if s.refreshErr != nil {
		return s.refreshErr
	}
	s.refreshed = append(s.refreshed, *sig)
	return nil
}

func (s *stubStore) ListActiveSignals(ctx context.Context) ([]domain.Signal, error) {
	return s.active, s.activeErr
}

func (s *stubStore) UpdateSignalStatus(ctx context.Context, id int64, status domain.Status, price float64) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updates = append(s.updates, statusUpdate{id: id, status: status, price: price})
	return nil
}

func (s *stubStore) RefreshPrices(ctx context.Context, signals []domain.Signal) error {
	s.priceOnly = append(s.priceOnly, signals...)
	return nil
}

type stubErrors struct {
	entries []string
}

func (s *stubErrors) Log(ctx context.Context, source, message string) error {
	s.entries = append(s.entries, source+": "+message)
	return nil
}

func f(v float64) *float64 { return &v }

func mainObservation(ticker, tf string) domain.Observation {
	return domain.Observation{
		Ticker:       ticker,
		Timeframe:    tf,
		Category:     domain.CategoryMain,
		Direction:    domain.DirectionLong,
		EntryPrice:   20.0,
		TakeProfit:   f(22.0),
		StopLoss:     f(19.0),
		Confidence:   f(80.0),
		CurrentPrice: 20.5,
	}
}

func TestSaveObservationsCreatesNewSignal(t *testing.T) {
	store := &stubStore{}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	result := svc.SaveObservations(context.Background(), []domain.Observation{mainObservation("AVAX", "15m")})
	if result.Created != 1 || result.Updated != 0 || result.Errors != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 create, got %d", len(store.created))
	}
	created := store.created[0]
	if created.Status != domain.StatusNew || !created.IsMainSignal {
		t.Fatalf("unexpected created row: %+v", created)
	}
}

func TestSaveObservationsRefreshesRecentMatch(t *testing.T) {
	store := &stubStore{match: &domain.Signal{
		ID:           7,
		Ticker:       "AVAX",
		Timeframe:    "15m",
		Direction:    domain.DirectionLong,
		EntryPrice:   20.0,
		TakeProfit:   f(22.0),
		Confidence:   f(70.0),
		CurrentPrice: 20.1,
		Status:       domain.StatusNew,
	}}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	obs := mainObservation("AVAX", "15m")
	obs.CurrentPrice = 20.9
	obs.Confidence = f(85.0)
	obs.EntryPrice = 21.0 // immutable once created

	result := svc.SaveObservations(context.Background(), []domain.Observation{obs})
	if result.Updated != 1 || result.Created != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(store.refreshed) != 1 {
		t.Fatalf("expected 1 refresh, got %d", len(store.refreshed))
	}
	got := store.refreshed[0]
	if got.CurrentPrice != 20.9 || *got.Confidence != 85.0 {
		t.Fatalf("expected mutable fields refreshed, got %+v", got)
	}
	if got.EntryPrice != 20.0 {
		t.Fatalf("entry price must not change on refresh, got %v", got.EntryPrice)
	}
}

func TestSaveObservationsCorrectionAttachesToMainRow(t *testing.T) {
	store := &stubStore{match: &domain.Signal{
		ID:        3,
		Ticker:    "AVAX",
		Timeframe: "1h",
		Direction: domain.DirectionLong,
		Status:    domain.StatusActive,
	}}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	obs := domain.Observation{
		Ticker:     "AVAX",
		Timeframe:  "1h",
		Category:   domain.CategoryCorrection,
		Direction:  domain.DirectionShort,
		EntryPrice: 21.2,
		TakeProfit: f(20.3),
	}
	result := svc.SaveObservations(context.Background(), []domain.Observation{obs})
	if result.Updated != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	corr := store.refreshed[0].Correction
	if corr == nil || corr.Direction != domain.DirectionShort || corr.Entry != 21.2 {
		t.Fatalf("unexpected correction: %+v", corr)
	}
}

func TestSaveObservationsDropsOrphanCorrection(t *testing.T) {
	store := &stubStore{}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	obs := domain.Observation{
		Ticker:     "AVAX",
		Timeframe:  "1h",
		Category:   domain.CategoryCorrection,
		Direction:  domain.DirectionShort,
		EntryPrice: 21.2,
	}
	result := svc.SaveObservations(context.Background(), []domain.Observation{obs})
	if result.Skipped != 1 || result.Created != 0 || result.Errors != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSaveObservationsBatchPartialFailure(t *testing.T) {
	store := &stubStore{}
	sink := &stubErrors{}
	svc := NewSignalService(store, sink, noopTracer(), 30*time.Minute)

	hold := mainObservation("ETH", "1h")
	hold.Direction = domain.DirectionHold
	noEntry := mainObservation("SOL", "1h")
	noEntry.EntryPrice = 0

	batch := []domain.Observation{
		mainObservation("BTC", "15m"),
		mainObservation("BTC", "1h"),
		hold,
		noEntry,
		mainObservation("AVAX", "4h"),
	}
	result := svc.SaveObservations(context.Background(), batch)

	if result.Total != 5 || result.Created != 3 || result.Updated != 0 || result.Skipped != 1 || result.Errors != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.CreatedSignals) != 3 {
		t.Fatalf("expected 3 created rows, got %d", len(result.CreatedSignals))
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 error entry, got %v", sink.entries)
	}
}

func TestSaveObservationsCountsStoreFailures(t *testing.T) {
	store := &stubStore{createErr: fmt.Errorf("connection reset")}
	sink := &stubErrors{}
	svc := NewSignalService(store, sink, noopTracer(), 30*time.Minute)

	result := svc.SaveObservations(context.Background(), []domain.Observation{mainObservation("BTC", "1h")})
	if result.Errors != 1 || result.Created != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 error entry, got %v", sink.entries)
	}
}

func TestValidateActiveSignalsTransitions(t *testing.T) {
	store := &stubStore{active: []domain.Signal{
		{ID: 1, Ticker: "AVAX", Direction: domain.DirectionLong, EntryPrice: 20, TakeProfit: f(22), StopLoss: f(19), Status: domain.StatusNew},
		{ID: 2, Ticker: "BTC", Direction: domain.DirectionLong, EntryPrice: 50000, TakeProfit: f(52000), StopLoss: f(48000), Status: domain.StatusActive},
		{ID: 3, Ticker: "ETH", Direction: domain.DirectionShort, EntryPrice: 3000, TakeProfit: f(2800), StopLoss: f(3100), Status: domain.StatusActive},
	}}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	prices := map[string]float64{
		"AVAX": 19.8,  // crosses entry for a long
		"BTC":  52100, // take profit
		"ETH":  3150,  // stop loss
	}
	result, err := svc.ValidateActiveSignals(context.Background(), prices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Checked != 3 || result.EntryHits != 1 || result.TPHits != 1 || result.SLHits != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Changed) != 3 {
		t.Fatalf("expected 3 changed signals, got %d", len(result.Changed))
	}
	if len(store.updates) != 3 {
		t.Fatalf("expected 3 status updates, got %d", len(store.updates))
	}
	if store.updates[0].status != domain.StatusEntryHit || store.updates[0].price != 19.8 {
		t.Fatalf("unexpected first update: %+v", store.updates[0])
	}
}

func TestValidateActiveSignalsFallsBackToStoredPrice(t *testing.T) {
	store := &stubStore{active: []domain.Signal{
		{ID: 1, Ticker: "AVAX", Direction: domain.DirectionLong, EntryPrice: 20, StopLoss: f(19), Status: domain.StatusActive, CurrentPrice: 18.9},
	}}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	result, err := svc.ValidateActiveSignals(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SLHits != 1 {
		t.Fatalf("expected stop loss from stored price, got %+v", result)
	}
}

func TestValidateActiveSignalsRefreshesPriceWithoutTransition(t *testing.T) {
	store := &stubStore{active: []domain.Signal{
		{ID: 1, Ticker: "AVAX", Direction: domain.DirectionLong, EntryPrice: 20, TakeProfit: f(22), StopLoss: f(19), Status: domain.StatusActive, CurrentPrice: 20.4},
	}}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	result, err := svc.ValidateActiveSignals(context.Background(), map[string]float64{"AVAX": 20.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Changed) != 0 {
		t.Fatalf("expected no lifecycle change, got %+v", result.Changed)
	}
	if len(store.updates) != 0 {
		t.Fatalf("expected no status writes, got %+v", store.updates)
	}
	if len(store.priceOnly) != 1 || store.priceOnly[0].ID != 1 || store.priceOnly[0].CurrentPrice != 20.6 {
		t.Fatalf("expected batched price refresh, got %+v", store.priceOnly)
	}
}

func TestValidateActiveSignalsSkipsUnpriceableRows(t *testing.T) {
	store := &stubStore{active: []domain.Signal{
		{ID: 1, Ticker: "AVAX", Direction: domain.DirectionLong, EntryPrice: 20, Status: domain.StatusNew, CurrentPrice: 0},
	}}
	svc := NewSignalService(store, nil, noopTracer(), 30*time.Minute)

	result, err := svc.ValidateActiveSignals(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Checked != 0 || len(store.updates) != 0 {
		t.Fatalf("expected row skipped, got %+v", result)
	}
}
