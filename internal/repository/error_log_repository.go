package repository

import (
	"context"

	"hydra-signals/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// ErrorLogRepository appends recoverable failures for operational visibility.
type ErrorLogRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewErrorLogRepository(pool PgxPool, tracer trace.Tracer) *ErrorLogRepository {
	return &ErrorLogRepository{pool: pool, tracer: tracer}
}

func (r *ErrorLogRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "error-log-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS error_logs (
			id BIGSERIAL PRIMARY KEY,
			source VARCHAR(50),
			message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (r *ErrorLogRepository) Log(ctx context.Context, source, message string) error {
	_, span := r.tracer.Start(ctx, "error-log-repo.log")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO error_logs (source, message) VALUES ($1, $2)`,
		source, message,
	)
	return err
}

func (r *ErrorLogRepository) Recent(ctx context.Context, limit int) ([]domain.ErrorEntry, error) {
	_, span := r.tracer.Start(ctx, "error-log-repo.recent")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, source, message, created_at
		 FROM error_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ErrorEntry
	for rows.Next() {
		var e domain.ErrorEntry
		if err := rows.Scan(&e.ID, &e.Source, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
