package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/radiusdt/adreport/internal/models"
)

// In-memory implementations

// InMemoryCacheRepo stores cache entries in memory. Entries are copied on
// the way in and out so callers never share a campaign slice with the store.
type InMemoryCacheRepo struct {
	mu      sync.RWMutex
	entries map[string]*models.CacheEntry
}

func NewInMemoryCacheRepo() *InMemoryCacheRepo {
	return &InMemoryCacheRepo{
		entries: make(map[string]*models.CacheEntry),
	}
}

func (r *InMemoryCacheRepo) Get(_ context.Context, key models.CacheKey) (*models.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key.String()]
	if !ok {
		return nil, nil
	}
	return cloneEntry(e), nil
}

func (r *InMemoryCacheRepo) Put(_ context.Context, entry *models.CacheEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := entry.Key.String()
	if cur, ok := r.entries[k]; ok && cur.LastUpdated.After(entry.LastUpdated) {
		return false, nil
	}
	r.entries[k] = cloneEntry(entry)
	return true, nil
}

func (r *InMemoryCacheRepo) Invalidate(_ context.Context, key models.CacheKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key.String())
	return nil
}

// Len returns the number of stored entries.
func (r *InMemoryCacheRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// InMemoryHistoricalRepo stores historical summaries in memory.
type InMemoryHistoricalRepo struct {
	mu        sync.RWMutex
	summaries map[models.HistoricalKey]*models.HistoricalSummary
}

func NewInMemoryHistoricalRepo() *InMemoryHistoricalRepo {
	return &InMemoryHistoricalRepo{
		summaries: make(map[models.HistoricalKey]*models.HistoricalSummary),
	}
}

func (r *InMemoryHistoricalRepo) GetSummary(_ context.Context, key models.HistoricalKey) (*models.HistoricalSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.summaries[normalizeKey(key)]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Campaigns = cloneCampaigns(s.Campaigns)
	return &cp, nil
}

// Seed stores a summary. It stands in for the backfill job.
func (r *InMemoryHistoricalRepo) Seed(s *models.HistoricalSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	cp.Key = normalizeKey(s.Key)
	cp.Campaigns = cloneCampaigns(s.Campaigns)
	r.summaries[cp.Key] = &cp
}

func normalizeKey(k models.HistoricalKey) models.HistoricalKey {
	k.PeriodStart = models.DateOf(k.PeriodStart)
	return k
}

// InMemoryDailyKPIRepo stores daily rows in memory.
type InMemoryDailyKPIRepo struct {
	mu   sync.RWMutex
	rows []models.DailyKPIRow
}

func NewInMemoryDailyKPIRepo() *InMemoryDailyKPIRepo {
	return &InMemoryDailyKPIRepo{}
}

// Insert appends daily rows.
func (r *InMemoryDailyKPIRepo) Insert(rows ...models.DailyKPIRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, rows...)
}

func (r *InMemoryDailyKPIRepo) SumCampaigns(_ context.Context, clientID string, platform models.Platform, dr models.DateRange) ([]models.CampaignMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byID := make(map[string]*models.CampaignMetrics)
	for _, row := range r.rows {
		if row.ClientID != clientID || row.Platform != platform {
			continue
		}
		d := models.DateOf(row.Date)
		if d.Before(dr.Start) || d.After(dr.End) {
			continue
		}
		c, ok := byID[row.CampaignID]
		if !ok {
			c = &models.CampaignMetrics{ID: row.CampaignID, Name: row.CampaignName}
			byID[row.CampaignID] = c
		}
		c.Spend += row.Spend
		c.Impressions += row.Impressions
		c.Clicks += row.Clicks
		c.Funnel = c.Funnel.Add(row.Funnel)
	}

	result := make([]models.CampaignMetrics, 0, len(byID))
	for _, c := range byID {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// InMemoryAccountRepo maps clients to platform account ids.
type InMemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]string
}

func NewInMemoryAccountRepo() *InMemoryAccountRepo {
	return &InMemoryAccountRepo{
		accounts: make(map[string]string),
	}
}

// Link sets the account id for a client on a platform.
func (r *InMemoryAccountRepo) Link(clientID string, platform models.Platform, accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[clientID+":"+string(platform)] = accountID
}

func (r *InMemoryAccountRepo) GetAccountID(_ context.Context, clientID string, platform models.Platform) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounts[clientID+":"+string(platform)], nil
}

func cloneEntry(e *models.CacheEntry) *models.CacheEntry {
	cp := *e
	cp.Snapshot.Campaigns = cloneCampaigns(e.Snapshot.Campaigns)
	return &cp
}

func cloneCampaigns(in []models.CampaignMetrics) []models.CampaignMetrics {
	if in == nil {
		return nil
	}
	out := make([]models.CampaignMetrics, len(in))
	copy(out, in)
	return out
}
