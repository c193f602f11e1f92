package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidocare/nido-api/internal/models"
	appErrors "github.com/nidocare/nido-api/pkg/errors"
)

type mockDashboardSessions struct {
	summaryCalls int
	rosterCalls  int
}

func (m *mockDashboardSessions) Roster(ctx context.Context, date time.Time) ([]models.RosterEntry, error) {
	m.rosterCalls++
	return []models.RosterEntry{
		{StudentID: "s1", StudentName: "Ana García", State: models.SessionPresent},
		{StudentID: "s2", StudentName: "Luis Pérez", State: models.SessionAbsent},
	}, nil
}

func (m *mockDashboardSessions) Summary(ctx context.Context, date time.Time) (*models.DaySummary, error) {
	m.summaryCalls++
	return &models.DaySummary{Date: date, Present: 1, Departed: 0, Expected: 1, Total: 2}, nil
}

func (m *mockDashboardSessions) Today() time.Time {
	return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
}

// jsonCache mimics the redis-backed cache repository: values round-trip
// through JSON like they do on the wire.
type jsonCache struct {
	values  map[string][]byte
	deleted []string
}

func (c *jsonCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *jsonCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.values == nil {
		c.values = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *jsonCache) Delete(ctx context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	delete(c.values, key)
	return nil
}

func TestDashboardCachesSecondRead(t *testing.T) {
	sessions := &mockDashboardSessions{}
	cache := &jsonCache{}
	svc := NewDashboardService(sessions, cache, zap.NewNop(), time.Minute)
	ctx := context.Background()

	first, hit, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, first.Summary.Present)
	assert.Len(t, first.Roster, 2)

	second, hit, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, 1, sessions.summaryCalls, "cached read must not rebuild")
}

func TestDashboardInvalidateForcesRebuild(t *testing.T) {
	sessions := &mockDashboardSessions{}
	cache := &jsonCache{}
	svc := NewDashboardService(sessions, cache, zap.NewNop(), time.Minute)
	ctx := context.Background()

	_, _, err := svc.Today(ctx)
	require.NoError(t, err)

	svc.Invalidate(ctx)
	assert.Contains(t, cache.deleted, "dashboard:2026-03-02")

	_, hit, err := svc.Today(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, sessions.summaryCalls)
}

func TestDashboardWorksWithoutCache(t *testing.T) {
	sessions := &mockDashboardSessions{}
	svc := NewDashboardService(sessions, nil, zap.NewNop(), time.Minute)

	resp, hit, err := svc.Today(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, resp.Summary.Total)
}
