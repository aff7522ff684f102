package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hydra-signals/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SignalRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSignalRepository(pool PgxPool, tracer trace.Tracer) *SignalRepository {
	return &SignalRepository{pool: pool, tracer: tracer}
}

func (r *SignalRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "signal-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS signals (
			id BIGSERIAL PRIMARY KEY,
			ticker VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			direction VARCHAR(10) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION,
			stop_loss DOUBLE PRECISION,
			confidence DOUBLE PRECISION,
			risk_reward DOUBLE PRECISION,
			current_price DOUBLE PRECISION,
			status VARCHAR(20) NOT NULL DEFAULT 'new',
			is_main_signal BOOLEAN NOT NULL DEFAULT TRUE,
			correction_type VARCHAR(10),
			correction_entry DOUBLE PRECISION,
			correction_tp DOUBLE PRECISION,
			correction_sl DOUBLE PRECISION,
			correction_confidence DOUBLE PRECISION,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_signals_ticker_tf ON signals (ticker, timeframe);
		CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status);
		CREATE INDEX IF NOT EXISTS idx_signals_created_at ON signals (created_at);
	`)
	return err
}

// FindRecentMatch returns the most recent signal for (ticker, timeframe)
// created at or after since and still in an open status, or nil when no such
// row exists. Category is deliberately not part of the key: a correction
// observation matches the main signal's row.
func (r *SignalRepository) FindRecentMatch(ctx context.Context, ticker, timeframe string, since time.Time) (*domain.Signal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.find-recent-match")
	defer span.End()

	row := r.pool.QueryRow(ctx,
		selectSignalColumns+`
		 FROM signals
		 WHERE ticker = $1 AND timeframe = $2 AND created_at >= $3
		   AND status IN ('new', 'entry_hit', 'active')
		 ORDER BY created_at DESC
		 LIMIT 1`,
		ticker, timeframe, since.UTC(),
	)

	s, err := scanSignalRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SignalRepository) CreateSignal(ctx context.Context, s domain.Signal) (domain.Signal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.create-signal")
	defer span.End()

	var corrType *string
	var corrEntry, corrTP, corrSL, corrConf *float64
	if s.Correction != nil {
		ct := string(s.Correction.Direction)
		corrType = &ct
		corrEntry = &s.Correction.Entry
		corrTP = s.Correction.TakeProfit
		corrSL = s.Correction.StopLoss
		corrConf = s.Correction.Confidence
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO signals (
			ticker, timeframe, direction, entry_price, take_profit, stop_loss,
			confidence, risk_reward, current_price, status, is_main_signal,
			correction_type, correction_entry, correction_tp, correction_sl, correction_confidence
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id, created_at`,
		s.Ticker, s.Timeframe, string(s.Direction), s.EntryPrice, s.TakeProfit, s.StopLoss,
		s.Confidence, s.RiskReward, s.CurrentPrice, string(s.Status), s.IsMainSignal,
		corrType, corrEntry, corrTP, corrSL, corrConf,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return domain.Signal{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

// RefreshSignal persists the mutable fields of an existing row: current price,
// confidence and the correction sub-record. Entry, exits and direction are
// never written here.
func (r *SignalRepository) RefreshSignal(ctx context.Context, s *domain.Signal) error {
	_, span := r.tracer.Start(ctx, "signal-repo.refresh-signal")
	defer span.End()

	var corrType *string
	var corrEntry, corrTP, corrSL, corrConf *float64
	if s.Correction != nil {
		ct := string(s.Correction.Direction)
		corrType = &ct
		corrEntry = &s.Correction.Entry
		corrTP = s.Correction.TakeProfit
		corrSL = s.Correction.StopLoss
		corrConf = s.Correction.Confidence
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE signals SET
			current_price = $2,
			confidence = $3,
			correction_type = $4,
			correction_entry = $5,
			correction_tp = $6,
			correction_sl = $7,
			correction_confidence = $8
		 WHERE id = $1`,
		s.ID, s.CurrentPrice, s.Confidence, corrType, corrEntry, corrTP, corrSL, corrConf,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signal %d not found", s.ID)
	}
	return nil
}

// ListActiveSignals returns every row still driven by the state machine.
func (r *SignalRepository) ListActiveSignals(ctx context.Context) ([]domain.Signal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-active-signals")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		selectSignalColumns+`
		 FROM signals
		 WHERE status IN ('new', 'entry_hit', 'active')
		 ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSignalRows(rows)
}

// UpdateSignalStatus writes the new status and the price that triggered it in
// a single statement.
func (r *SignalRepository) UpdateSignalStatus(ctx context.Context, id int64, status domain.Status, currentPrice float64) error {
	_, span := r.tracer.Start(ctx, "signal-repo.update-signal-status")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`UPDATE signals SET status = $2, current_price = $3 WHERE id = $1`,
		id, string(status), currentPrice,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("signal %d not found", id)
	}
	return nil
}

// RefreshPrices writes the latest observed price for the given rows in one
// round trip. Status is never touched here.
func (r *SignalRepository) RefreshPrices(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "signal-repo.refresh-prices")
	defer span.End()

	batch := &pgx.Batch{}
	for _, s := range signals {
		batch.Queue(
			`UPDATE signals SET current_price = $2 WHERE id = $1`,
			s.ID, s.CurrentPrice,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range signals {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("refresh prices: %w", err)
		}
	}
	return nil
}

func (r *SignalRepository) ListSignals(ctx context.Context, filter domain.SignalFilter) ([]domain.Signal, error) {
	_, span := r.tracer.Start(ctx, "signal-repo.list-signals")
	defer span.End()

	args := make([]any, 0, 3)
	var sb strings.Builder
	sb.WriteString(selectSignalColumns)
	sb.WriteString(" FROM signals WHERE 1=1")

	if filter.Ticker != "" {
		args = append(args, strings.ToUpper(filter.Ticker))
		sb.WriteString(fmt.Sprintf(" AND ticker = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		sb.WriteString(fmt.Sprintf(" AND status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSignalRows(rows)
}

const selectSignalColumns = `SELECT id, ticker, timeframe, direction, entry_price, take_profit, stop_loss,
		confidence, risk_reward, current_price, status, is_main_signal,
		correction_type, correction_entry, correction_tp, correction_sl, correction_confidence,
		created_at`

func scanSignalRow(row pgx.Row) (*domain.Signal, error) {
	var s domain.Signal
	var direction, status string
	var currentPrice *float64
	var corrType *string
	var corrEntry, corrTP, corrSL, corrConf *float64
	var createdAt time.Time

	err := row.Scan(
		&s.ID,
		&s.Ticker,
		&s.Timeframe,
		&direction,
		&s.EntryPrice,
		&s.TakeProfit,
		&s.StopLoss,
		&s.Confidence,
		&s.RiskReward,
		&currentPrice,
		&status,
		&s.IsMainSignal,
		&corrType,
		&corrEntry,
		&corrTP,
		&corrSL,
		&corrConf,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	s.Direction = domain.Direction(direction)
	s.Status = domain.Status(status)
	if currentPrice != nil {
		s.CurrentPrice = *currentPrice
	}
	s.CreatedAt = createdAt.UTC()

	if corrType != nil {
		corr := &domain.Correction{
			Direction:  domain.Direction(*corrType),
			TakeProfit: corrTP,
			StopLoss:   corrSL,
			Confidence: corrConf,
		}
		if corrEntry != nil {
			corr.Entry = *corrEntry
		}
		s.Correction = corr
	}

	return &s, nil
}

func scanSignalRows(rows pgx.Rows) ([]domain.Signal, error) {
	var signals []domain.Signal
	for rows.Next() {
		s, err := scanSignalRow(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *s)
	}
	return signals, rows.Err()
}
