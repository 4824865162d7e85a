package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/adreport/internal/models"
)

// PostgresHistoricalRepo reads backfilled summaries from historical_summaries.
type PostgresHistoricalRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresHistoricalRepo(pool *pgxpool.Pool) *PostgresHistoricalRepo {
	return &PostgresHistoricalRepo{pool: pool}
}

func (r *PostgresHistoricalRepo) GetSummary(ctx context.Context, key models.HistoricalKey) (*models.HistoricalSummary, error) {
	var (
		raw     []byte
		summary = models.HistoricalSummary{Key: key}
	)
	err := r.pool.QueryRow(ctx, `
		SELECT period_end, campaigns, backfilled_at
		FROM historical_summaries
		WHERE client_id = $1 AND platform = $2 AND period_type = $3 AND period_start = $4
	`, key.ClientID, string(key.Platform), string(key.PeriodType), models.DateOf(key.PeriodStart)).
		Scan(&summary.PeriodEnd, &raw, &summary.BackfilledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get historical summary: %w", err)
	}

	if err := json.Unmarshal(raw, &summary.Campaigns); err != nil {
		return nil, fmt.Errorf("failed to decode historical campaigns: %w", err)
	}
	summary.PeriodEnd = models.DateOf(summary.PeriodEnd)
	return &summary, nil
}

// PostgresAccountRepo reads client_accounts.
type PostgresAccountRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepo(pool *pgxpool.Pool) *PostgresAccountRepo {
	return &PostgresAccountRepo{pool: pool}
}

func (r *PostgresAccountRepo) GetAccountID(ctx context.Context, clientID string, platform models.Platform) (string, error) {
	var accountID string
	err := r.pool.QueryRow(ctx, `
		SELECT account_id FROM client_accounts WHERE client_id = $1 AND platform = $2
	`, clientID, string(platform)).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get account id: %w", err)
	}
	return accountID, nil
}
