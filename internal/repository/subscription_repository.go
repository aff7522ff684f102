package repository

import (
	"context"
	"strings"

	"hydra-signals/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type SubscriptionRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewSubscriptionRepository(pool PgxPool, tracer trace.Tracer) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool, tracer: tracer}
}

func (r *SubscriptionRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "subscription-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			telegram_id BIGINT UNIQUE NOT NULL,
			username VARCHAR(255),
			subscribed_all BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			ticker VARCHAR(20) NOT NULL,
			frequency VARCHAR(10) NOT NULL DEFAULT '15m',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, ticker)
		);
	`)
	return err
}

// GetOrCreateUser upserts by telegram id, refreshing the username when it
// changed.
func (r *SubscriptionRepository) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (domain.User, error) {
	_, span := r.tracer.Start(ctx, "subscription-repo.get-or-create-user")
	defer span.End()

	var u domain.User
	var storedName *string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (telegram_id, username)
		 VALUES ($1, NULLIF($2, ''))
		 ON CONFLICT (telegram_id) DO UPDATE SET
		     username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username)
		 RETURNING id, telegram_id, username, subscribed_all, created_at`,
		telegramID, username,
	).Scan(&u.ID, &u.TelegramID, &storedName, &u.SubscribedAll, &u.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	if storedName != nil {
		u.Username = *storedName
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// AddSubscription returns false when the user is already subscribed.
func (r *SubscriptionRepository) AddSubscription(ctx context.Context, userID int64, ticker, frequency string) (bool, error) {
	_, span := r.tracer.Start(ctx, "subscription-repo.add-subscription")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO subscriptions (user_id, ticker, frequency)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, ticker) DO NOTHING`,
		userID, strings.ToUpper(ticker), frequency,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SubscriptionRepository) RemoveSubscription(ctx context.Context, userID int64, ticker string) (bool, error) {
	_, span := r.tracer.Start(ctx, "subscription-repo.remove-subscription")
	defer span.End()

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1 AND ticker = $2`,
		userID, strings.ToUpper(ticker),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SubscriptionRepository) ListUserTickers(ctx context.Context, userID int64) ([]string, error) {
	_, span := r.tracer.Start(ctx, "subscription-repo.list-user-tickers")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT ticker FROM subscriptions WHERE user_id = $1 ORDER BY ticker`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// ListSubscriberChats returns the telegram chat ids that should receive
// notifications for a ticker: per-ticker subscribers plus subscribed-all users.
func (r *SubscriptionRepository) ListSubscriberChats(ctx context.Context, ticker string) ([]int64, error) {
	_, span := r.tracer.Start(ctx, "subscription-repo.list-subscriber-chats")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT u.telegram_id
		 FROM users u
		 LEFT JOIN subscriptions s ON s.user_id = u.id
		 WHERE u.subscribed_all OR s.ticker = $1
		 ORDER BY u.telegram_id`,
		strings.ToUpper(ticker),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

func (r *SubscriptionRepository) SetSubscribedAll(ctx context.Context, userID int64, subscribed bool) error {
	_, span := r.tracer.Start(ctx, "subscription-repo.set-subscribed-all")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`UPDATE users SET subscribed_all = $2 WHERE id = $1`,
		userID, subscribed,
	)
	return err
}
