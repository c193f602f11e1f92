package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
)

type dashboardSessions interface {
	Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error)
	Summary(ctx context.Context, date time.Time) (*models.DaySummary, error)
	Today() time.Time
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// DashboardResponse is the director's landing payload: the presence counters
// and the per-student roster for the day.
type DashboardResponse struct {
	Date        time.Time            `json:"date"`
	Summary     models.DaySummary    `json:"summary"`
	Roster      []models.RosterEntry `json:"roster"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// DashboardService composes and caches the director dashboard.
type DashboardService struct {
	sessions dashboardSessions
	cache    dashboardCache
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewDashboardService constructs the dashboard service.
func NewDashboardService(sessions dashboardSessions, cache dashboardCache, logger *zap.Logger, cacheTTL time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &DashboardService{
		sessions: sessions,
		cache:    cache,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Today returns the dashboard for the current date and whether it was
// served from cache.
func (s *DashboardService) Today(ctx context.Context) (*DashboardResponse, bool, error) {
	date := s.sessions.Today()
	key := dashboardCacheKey(date)

	if s.cache != nil {
		var cached DashboardResponse
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, true, nil
		}
	}

	summary, err := s.sessions.Summary(ctx, date)
	if err != nil {
		return nil, false, err
	}
	roster, err := s.sessions.Roster(ctx, date)
	if err != nil {
		return nil, false, err
	}

	resp := &DashboardResponse{
		Date:        date,
		Summary:     *summary,
		Roster:      roster,
		GeneratedAt: s.now().UTC(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache dashboard", zap.Error(err))
		}
	}
	return resp, false, nil
}

// Invalidate drops the cached dashboard after an attendance transition so
// the counters refresh immediately.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, dashboardCacheKey(s.sessions.Today())); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func dashboardCacheKey(date time.Time) string {
	return fmt.Sprintf("dashboard:%s", date.Format("2006-01-02"))
}
