package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/parkease-coordinator/internal/cache"
	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) Stats(ctx context.Context, dayStart, dayEnd time.Time) (models.Stats, error) {
	args := m.Called(ctx, dayStart, dayEnd)
	return args.Get(0).(models.Stats), args.Error(1)
}

type BusMock struct{ mock.Mock }

func (m *BusMock) Publish(ctx context.Context, scope eventbus.Scope, event string, payload any) error {
	return m.Called(ctx, scope, event, payload).Error(0)
}

type fixedCounter int

func (c fixedCounter) Connected() int { return int(c) }

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func dayBounds() (time.Time, time.Time) {
	from := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}

func TestService_Snapshot_NoCache(t *testing.T) {
	repo := new(RepoMock)
	from, to := dayBounds()
	repo.On("Stats", mock.Anything, from, to).Return(models.Stats{TotalVehicles: 12, ActiveUsers: 3}, nil).Twice()

	svc := New(newNoopLogger(), repo, fixedCounter(4), new(BusMock), time.UTC, WithClock(func() time.Time { return fixedNow }))

	for range 2 {
		st, err := svc.Snapshot(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 12, st.TotalVehicles)
		assert.Equal(t, 4, st.ConnectedClients)
		assert.Equal(t, fixedNow, st.Timestamp)
	}
	repo.AssertExpectations(t)
}

func TestService_Snapshot_CachedInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	repo := new(RepoMock)
	from, to := dayBounds()
	repo.On("Stats", mock.Anything, from, to).Return(models.Stats{TodayEntries: 7}, nil).Once()

	svc := New(newNoopLogger(), repo, fixedCounter(1), new(BusMock), time.UTC,
		WithCache(c), WithClock(func() time.Time { return fixedNow }))

	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, first.TodayEntries)
	assert.Equal(t, 7, second.TodayEntries)
	repo.AssertExpectations(t)

	mr.FastForward(11 * time.Second)
	repo.On("Stats", mock.Anything, from, to).Return(models.Stats{TodayEntries: 8}, nil).Once()
	third, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, third.TodayEntries)
}

func TestService_Invalidate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	repo := new(RepoMock)
	from, to := dayBounds()
	repo.On("Stats", mock.Anything, from, to).Return(models.Stats{ActiveVehicles: 3}, nil).Once()
	repo.On("Stats", mock.Anything, from, to).Return(models.Stats{ActiveVehicles: 4}, nil).Once()

	svc := New(newNoopLogger(), repo, fixedCounter(0), new(BusMock), time.UTC,
		WithCache(c), WithClock(func() time.Time { return fixedNow }))

	first, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.ActiveVehicles)

	svc.Invalidate(context.Background())

	second, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, second.ActiveVehicles)
	repo.AssertExpectations(t)

	// без кэша сброс ничего не делает
	New(newNoopLogger(), repo, fixedCounter(0), new(BusMock), time.UTC).Invalidate(context.Background())
}

func TestService_Heartbeat(t *testing.T) {
	tests := []struct {
		name       string
		statsErr   error
		publishErr error
		wantErr    bool
	}{
		{name: "published"},
		{name: "no admins online", publishErr: eventbus.ErrNoSubscribers},
		{name: "publish failure", publishErr: errors.New("encode"), wantErr: true},
		{name: "storage failure", statsErr: errors.New("db down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			bus := new(BusMock)
			repo.On("Stats", mock.Anything, mock.Anything, mock.Anything).Return(models.Stats{ActiveVehicles: 2}, tt.statsErr).Once()
			if tt.statsErr == nil {
				bus.On("Publish", mock.Anything, eventbus.AdminScope(), eventbus.EventStatsUpdate, mock.MatchedBy(func(st models.Stats) bool {
					return st.ActiveVehicles == 2 && st.ConnectedClients == 5
				})).Return(tt.publishErr).Once()
			}

			svc := New(newNoopLogger(), repo, fixedCounter(5), bus, time.UTC, WithClock(func() time.Time { return fixedNow }))
			err := svc.Heartbeat(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "stats.Heartbeat")
			} else {
				require.NoError(t, err)
			}
			bus.AssertExpectations(t)
		})
	}
}
