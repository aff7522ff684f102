package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"hydra-signals/internal/domain"
	"hydra-signals/internal/service"
	"hydra-signals/internal/signal"

	"go.opentelemetry.io/otel/trace"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running. At most one cycle runs at a time.
var ErrCycleInProgress = errors.New("a processing cycle is already running")

type Fetcher interface {
	FetchObservations(ctx context.Context, ticker string) ([]domain.Observation, error)
}

type SignalSaver interface {
	SaveObservations(ctx context.Context, observations []domain.Observation) service.BatchResult
	ValidateActiveSignals(ctx context.Context, prices map[string]float64) (service.ValidationResult, error)
}

type PriceStore interface {
	SetPrices(ctx context.Context, prices map[string]float64) error
	GetPrice(ctx context.Context, ticker string) (float64, bool, error)
}

type Notifier interface {
	NotifyNewSignals(ctx context.Context, payload domain.NotificationPayload) error
	NotifyTransition(ctx context.Context, s domain.Signal) error
}

// CycleResult aggregates the counters of one full processing cycle.
type CycleResult struct {
	Tickers   int           `json:"tickers"`
	Fetched   int           `json:"fetched"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Skipped   int           `json:"skipped"`
	Errors    int           `json:"errors"`
	Checked   int           `json:"checked"`
	EntryHits int           `json:"entry_hits"`
	TPHits    int           `json:"tp_hits"`
	SLHits    int           `json:"sl_hits"`
	Duration  time.Duration `json:"-"`
}

func (r CycleResult) String() string {
	return fmt.Sprintf("fetched=%d created=%d updated=%d skipped=%d errors=%d checked=%d entry=%d tp=%d sl=%d in %s",
		r.Fetched, r.Created, r.Updated, r.Skipped, r.Errors, r.Checked, r.EntryHits, r.TPHits, r.SLHits,
		r.Duration.Round(time.Millisecond))
}

// Status is a snapshot of the run ledger.
type Status struct {
	SchedulerActive bool      `json:"scheduler_active"`
	IsRunning       bool      `json:"is_running"`
	TotalRuns       int       `json:"total_runs"`
	SuccessfulRuns  int       `json:"successful_runs"`
	FailedRuns      int       `json:"failed_runs"`
	SuccessRate     float64   `json:"success_rate"`
	LastRunTime     time.Time `json:"last_run_time,omitempty"`
	LastRunResult   string    `json:"last_run_result,omitempty"`
	NextRunTime     time.Time `json:"next_run_time,omitempty"`
	IntervalMinutes int       `json:"interval_minutes"`
}

// Orchestrator drives the periodic processing cycle: fetch observations for
// every instrument, persist them, refresh the price cache, run the execution
// state machine and fan out notifications. It guarantees at most one cycle is
// in flight, whether triggered by the scheduler, the bot or the HTTP API.
type Orchestrator struct {
	fetcher   Fetcher
	annotator *signal.Annotator
	signals   SignalSaver
	prices    PriceStore
	notifier  Notifier
	errors    service.ErrorSink
	tracer    trace.Tracer

	tickers    []string
	interval   time.Duration
	fetchDelay time.Duration
	stopWait   time.Duration

	mu            sync.Mutex
	running       bool
	schedulerOn   bool
	quit          chan struct{}
	done          chan struct{}
	totalRuns     int
	successRuns   int
	failedRuns    int
	lastRunTime   time.Time
	lastRunResult string
	nextRun       time.Time

	// test seams
	now          func() time.Time
	pollInterval time.Duration
	forceGrace   time.Duration
	exit         func(code int)
}

func NewOrchestrator(
	fetcher Fetcher,
	annotator *signal.Annotator,
	signals SignalSaver,
	prices PriceStore,
	notifier Notifier,
	errorSink service.ErrorSink,
	tracer trace.Tracer,
	instruments []string,
	interval, fetchDelay, stopWait time.Duration,
) *Orchestrator {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if stopWait <= 0 {
		stopWait = 240 * time.Second
	}
	return &Orchestrator{
		fetcher:      fetcher,
		annotator:    annotator,
		signals:      signals,
		prices:       prices,
		notifier:     notifier,
		errors:       errorSink,
		tracer:       tracer,
		tickers:      instruments,
		interval:     interval,
		fetchDelay:   fetchDelay,
		stopWait:     stopWait,
		now:          time.Now,
		pollInterval: 10 * time.Second,
		forceGrace:   2 * time.Second,
		exit:         os.Exit,
	}
}

// Start launches the scheduler goroutine. The loop ticks every second; with a
// 15 minute interval cycles are pinned to quarter-hour wall-clock marks,
// otherwise they run a fixed interval after the previous start.
func (o *Orchestrator) Start(ctx context.Context, runImmediately bool) error {
	o.mu.Lock()
	if o.schedulerOn {
		o.mu.Unlock()
		return errors.New("scheduler already started")
	}
	o.schedulerOn = true
	o.quit = make(chan struct{})
	o.done = make(chan struct{})
	o.nextRun = o.computeNextRun(o.now())
	quit, done := o.quit, o.done
	o.mu.Unlock()

	log.Printf("scheduler started, interval %s, first cycle at %s",
		o.interval, o.nextRun.Format("15:04:05"))

	go o.loop(ctx, quit, done, runImmediately)
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, quit, done chan struct{}, runImmediately bool) {
	defer close(done)

	if runImmediately {
		o.runScheduled(ctx)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastCountdown := -1
	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := o.now()

			o.mu.Lock()
			next := o.nextRun
			o.mu.Unlock()

			remaining := next.Sub(now)
			if remaining > 0 {
				if mins := int(remaining.Minutes()); mins != lastCountdown && now.Second() == 0 {
					lastCountdown = mins
					log.Printf("next cycle in %dm%02ds", mins, int(remaining.Seconds())%60)
				}
				continue
			}

			o.runScheduled(ctx)
			lastCountdown = -1
		}
	}
}

func (o *Orchestrator) runScheduled(ctx context.Context) {
	o.mu.Lock()
	o.nextRun = o.computeNextRun(o.now().Add(time.Second))
	o.mu.Unlock()

	if _, err := o.Run(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		log.Printf("scheduled cycle failed: %v", err)
	}
}

// computeNextRun pins 15 minute intervals to :00/:15/:30/:45 wall-clock
// marks; any other interval simply counts from now.
func (o *Orchestrator) computeNextRun(now time.Time) time.Time {
	if o.interval != 15*time.Minute {
		return now.Add(o.interval)
	}
	next := now.Truncate(15 * time.Minute).Add(15 * time.Minute)
	return next
}

// Run executes one full processing cycle, or returns ErrCycleInProgress when
// one is already in flight. The run ledger is updated exactly once per
// executed cycle.
func (o *Orchestrator) Run(ctx context.Context) (CycleResult, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return CycleResult{}, ErrCycleInProgress
	}
	o.running = true
	o.totalRuns++
	o.mu.Unlock()

	started := o.now()
	result, err := o.cycle(ctx)
	result.Duration = o.now().Sub(started)

	o.mu.Lock()
	o.running = false
	o.lastRunTime = started
	if err != nil {
		o.failedRuns++
		o.lastRunResult = fmt.Sprintf("failed: %v", err)
	} else {
		o.successRuns++
		o.lastRunResult = result.String()
	}
	o.mu.Unlock()

	if err != nil {
		log.Printf("cycle failed: %v", err)
		if o.errors != nil {
			_ = o.errors.Log(ctx, "Orchestrator", err.Error())
		}
		return result, err
	}

	log.Printf("cycle complete: %s", result)
	return result, nil
}

func (o *Orchestrator) cycle(ctx context.Context) (CycleResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.cycle")
	defer span.End()

	var result CycleResult
	result.Tickers = len(o.tickers)

	prices := make(map[string]float64, len(o.tickers))
	var payloads []domain.NotificationPayload

	for i, ticker := range o.tickers {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if i > 0 && o.fetchDelay > 0 {
			time.Sleep(o.fetchDelay)
		}

		observations, err := o.fetcher.FetchObservations(ctx, ticker)
		if err != nil {
			result.Errors++
			log.Printf("fetch failed for %s: %v", ticker, err)
			if o.errors != nil {
				_ = o.errors.Log(ctx, "Orchestrator", fmt.Sprintf("fetch %s: %v", ticker, err))
			}
			continue
		}
		result.Fetched += len(observations)

		observations = o.annotator.Annotate(observations)
		for _, obs := range observations {
			if obs.CurrentPrice > 0 {
				prices[obs.Ticker] = obs.CurrentPrice
			}
		}

		batch := o.signals.SaveObservations(ctx, observations)
		result.Created += batch.Created
		result.Updated += batch.Updated
		result.Skipped += batch.Skipped
		result.Errors += batch.Errors

		if payload, ok := newSignalPayload(ticker, batch.CreatedSignals, observations); ok {
			payloads = append(payloads, payload)
		}
	}

	if o.prices != nil {
		if len(prices) > 0 {
			if err := o.prices.SetPrices(ctx, prices); err != nil {
				log.Printf("price cache write failed: %v", err)
			}
		}
		// Instruments whose fetch failed this cycle are still validated
		// against the last cached price.
		for _, ticker := range o.tickers {
			if _, ok := prices[ticker]; ok {
				continue
			}
			if price, ok, err := o.prices.GetPrice(ctx, ticker); err == nil && ok {
				prices[ticker] = price
			}
		}
	}

	validation, err := o.signals.ValidateActiveSignals(ctx, prices)
	if err != nil {
		return result, fmt.Errorf("validate active signals: %w", err)
	}
	result.Checked = validation.Checked
	result.EntryHits = validation.EntryHits
	result.TPHits = validation.TPHits
	result.SLHits = validation.SLHits

	if o.notifier != nil {
		for _, payload := range payloads {
			if err := o.notifier.NotifyNewSignals(ctx, payload); err != nil {
				log.Printf("notification failed for %s: %v", payload.Pair, err)
			}
		}
		for _, changed := range validation.Changed {
			if changed.Status == domain.StatusActive {
				continue
			}
			if err := o.notifier.NotifyTransition(ctx, changed); err != nil {
				log.Printf("transition notification failed for signal %d: %v", changed.ID, err)
			}
		}
	}

	return result, nil
}

// newSignalPayload builds the per-instrument notification for rows created
// this cycle. Warnings ride along from the matching observation.
func newSignalPayload(ticker string, created []domain.Signal, observations []domain.Observation) (domain.NotificationPayload, bool) {
	if len(created) == 0 {
		return domain.NotificationPayload{}, false
	}

	warningsByTimeframe := make(map[string][]domain.Warning, len(observations))
	for _, obs := range observations {
		if len(obs.Warnings) > 0 {
			warningsByTimeframe[obs.Timeframe] = obs.Warnings
		}
	}

	frames := make([]domain.Frame, 0, len(created))
	for _, s := range created {
		frames = append(frames, domain.Frame{
			Timeframe:  s.Timeframe,
			Direction:  s.Direction,
			Entry:      s.EntryPrice,
			TakeProfit: s.TakeProfit,
			StopLoss:   s.StopLoss,
			Confidence: s.Confidence,
			Warnings:   warningsByTimeframe[s.Timeframe],
			Correction: s.Correction,
		})
	}

	return domain.NotificationPayload{
		Pair:   ticker + "USDT",
		Frames: frames,
		Source: "signal-engine",
	}, true
}

// Stop shuts the scheduler down and waits for any in-flight cycle, polling
// until it finishes or the stop budget runs out.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.schedulerOn {
		o.mu.Unlock()
		return nil
	}
	o.schedulerOn = false
	close(o.quit)
	done := o.done
	o.mu.Unlock()

	<-done
	log.Println("scheduler stopped, waiting for in-flight cycle")

	deadline := o.now().Add(o.stopWait)
	for {
		o.mu.Lock()
		running := o.running
		o.mu.Unlock()
		if !running {
			log.Println("orchestrator stopped")
			return nil
		}
		if o.now().After(deadline) {
			return fmt.Errorf("cycle still running after %s", o.stopWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

// ForceStop stops the scheduler without waiting for the in-flight cycle and
// terminates the process after a short grace period.
func (o *Orchestrator) ForceStop() {
	o.mu.Lock()
	if o.schedulerOn {
		o.schedulerOn = false
		close(o.quit)
	}
	o.mu.Unlock()

	log.Printf("force stop requested, exiting in %s", o.forceGrace)
	go func() {
		time.Sleep(o.forceGrace)
		o.exit(0)
	}()
}

// RunManual triggers a cycle outside the schedule. It is rejected when a
// cycle is already in flight.
func (o *Orchestrator) RunManual(ctx context.Context) (CycleResult, error) {
	log.Println("manual cycle requested")
	return o.Run(ctx)
}

// Status returns a snapshot of the run ledger.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Status{
		SchedulerActive: o.schedulerOn,
		IsRunning:       o.running,
		TotalRuns:       o.totalRuns,
		SuccessfulRuns:  o.successRuns,
		FailedRuns:      o.failedRuns,
		LastRunTime:     o.lastRunTime,
		LastRunResult:   o.lastRunResult,
		IntervalMinutes: int(o.interval.Minutes()),
	}
	if o.schedulerOn {
		s.NextRunTime = o.nextRun
	}
	if o.totalRuns > 0 {
		s.SuccessRate = float64(o.successRuns) / float64(o.totalRuns) * 100
	}
	return s
}
