package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/radiusdt/adreport/internal/models"
)

// ClickHouseDailyKPIRepo sums campaign rows from the daily_kpis table.
type ClickHouseDailyKPIRepo struct {
	conn driver.Conn
}

func NewClickHouseDailyKPIRepo(conn driver.Conn) *ClickHouseDailyKPIRepo {
	return &ClickHouseDailyKPIRepo{conn: conn}
}

func (r *ClickHouseDailyKPIRepo) SumCampaigns(ctx context.Context, clientID string, platform models.Platform, dr models.DateRange) ([]models.CampaignMetrics, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT
			campaign_id,
			any(campaign_name),
			sum(spend),
			sum(impressions),
			sum(clicks),
			sum(step1),
			sum(step2),
			sum(step3),
			sum(reservations),
			sum(reservation_value)
		FROM daily_kpis FINAL
		WHERE client_id = ? AND platform = ? AND date >= ? AND date <= ?
		GROUP BY campaign_id
		ORDER BY campaign_id
	`, clientID, string(platform), dr.Start, dr.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily kpis: %w", err)
	}
	defer rows.Close()

	var result []models.CampaignMetrics
	for rows.Next() {
		var (
			c           models.CampaignMetrics
			impressions uint64
			clicks      uint64
		)
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Spend, &impressions, &clicks,
			&c.Funnel.Step1, &c.Funnel.Step2, &c.Funnel.Step3,
			&c.Funnel.Reservations, &c.Funnel.ReservationValue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily kpi row: %w", err)
		}
		c.Impressions = int64(impressions)
		c.Clicks = int64(clicks)
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily kpis: %w", err)
	}
	return result, nil
}
