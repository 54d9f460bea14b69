package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) InsertNotification(ctx context.Context, n models.NotificationEntry) (int64, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RepoMock) PendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.NotificationEntry, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotificationEntry), args.Error(1)
}

func (m *RepoMock) MarkNotificationSent(ctx context.Context, id int64, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *RepoMock) NotificationEnqueuedSince(ctx context.Context, accountID, typ string, since time.Time) (bool, error) {
	args := m.Called(ctx, accountID, typ, since)
	return args.Bool(0), args.Error(1)
}

// recordingBus запоминает порядок доставки по аккаунтам.
type recordingBus struct {
	mu        sync.Mutex
	delivered map[string][]int64
	offline   map[string]bool
	failOn    map[int64]bool
}

func newRecordingBus() *recordingBus {
	return &recordingBus{
		delivered: make(map[string][]int64),
		offline:   make(map[string]bool),
		failOn:    make(map[int64]bool),
	}
}

func (b *recordingBus) Publish(_ context.Context, scope eventbus.Scope, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if event != eventbus.EventNotification {
		return errors.New("unexpected event " + event)
	}
	ev := payload.(models.NotificationEvent)
	if b.offline[scope.Key] {
		return eventbus.ErrNoSubscribers
	}
	if b.failOn[ev.ID] {
		return errors.New("send failed")
	}
	b.delivered[scope.Key] = append(b.delivered[scope.Key], ev.ID)
	return nil
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newQueue(repo *RepoMock, bus Publisher, opts ...Option) *Queue {
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	return New(newNoopLogger(), repo, bus, opts...)
}

func entry(id int64, account string, minutesAgo int) models.NotificationEntry {
	return models.NotificationEntry{
		ID:           id,
		AccountID:    account,
		Type:         models.NotifyTrialExpiringSoon,
		Title:        "Trial Expiring Soon",
		Message:      "msg",
		ScheduledFor: fixedNow.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func TestQueue_Enqueue(t *testing.T) {
	tests := []struct {
		name        string
		notice      Notice
		setupMocks  func(r *RepoMock)
		wantPublish bool
		wantErr     bool
	}{
		{
			name: "immediate notice is stored then published",
			notice: Notice{
				AccountID: "acc-1",
				Type:      models.NotifyTrialExpired,
				Title:     "Trial Expired",
				Message:   "Your free trial has ended.",
				Payload:   map[string]any{"dataBackedUp": true},
			},
			setupMocks: func(r *RepoMock) {
				r.On("InsertNotification", mock.Anything, mock.MatchedBy(func(n models.NotificationEntry) bool {
					return n.AccountID == "acc-1" && n.ScheduledFor.Equal(fixedNow) &&
						string(n.Payload) == `{"dataBackedUp":true}`
				})).Return(int64(7), nil).Once()
			},
			wantPublish: true,
		},
		{
			name: "deferred notice is only stored",
			notice: Notice{
				AccountID:    "acc-1",
				Type:         models.NotifyTrialExpiringSoon,
				ScheduledFor: fixedNow.Add(time.Hour),
			},
			setupMocks: func(r *RepoMock) {
				r.On("InsertNotification", mock.Anything, mock.Anything).Return(int64(8), nil).Once()
			},
		},
		{
			name:   "insert failure",
			notice: Notice{AccountID: "acc-1", Type: models.NotifyTrialExpired},
			setupMocks: func(r *RepoMock) {
				r.On("InsertNotification", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down")).Once()
			},
			wantErr: true,
		},
		{
			name:       "unserializable payload",
			notice:     Notice{AccountID: "acc-1", Payload: make(chan int)},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			bus := newRecordingBus()
			tt.setupMocks(repo)

			id, err := newQueue(repo, bus).Enqueue(context.Background(), tt.notice)
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, bus.delivered)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, id)
			if tt.wantPublish {
				assert.Equal(t, []int64{id}, bus.delivered["acc-1"])
			} else {
				assert.Empty(t, bus.delivered)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestQueue_Enqueue_OfflineAccountStillSucceeds(t *testing.T) {
	repo := new(RepoMock)
	bus := newRecordingBus()
	bus.offline["acc-1"] = true
	repo.On("InsertNotification", mock.Anything, mock.Anything).Return(int64(1), nil).Once()

	id, err := newQueue(repo, bus).Enqueue(context.Background(), Notice{AccountID: "acc-1", Type: models.NotifyTrialExpired})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestQueue_Drain(t *testing.T) {
	repo := new(RepoMock)
	bus := newRecordingBus()

	pending := []models.NotificationEntry{
		entry(1, "acc-1", 30),
		entry(2, "acc-2", 20),
		entry(3, "acc-1", 10),
		entry(4, "acc-3", 5),
		entry(5, "acc-1", 1),
	}
	bus.offline["acc-3"] = true

	repo.On("PendingNotifications", mock.Anything, fixedNow, 100).Return(pending, nil).Once()
	for _, id := range []int64{1, 2, 3, 5} {
		repo.On("MarkNotificationSent", mock.Anything, id, fixedNow).Return(nil).Once()
	}

	res, err := newQueue(repo, bus, WithConcurrency(2)).Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DrainResult{Fetched: 5, Sent: 4, Failed: 1}, res)
	assert.Equal(t, []int64{1, 3, 5}, bus.delivered["acc-1"])
	assert.Equal(t, []int64{2}, bus.delivered["acc-2"])
	assert.Empty(t, bus.delivered["acc-3"])
	repo.AssertNotCalled(t, "MarkNotificationSent", mock.Anything, int64(4), mock.Anything)
	repo.AssertExpectations(t)
}

func TestQueue_Drain_FailedEntryIsSkipped(t *testing.T) {
	repo := new(RepoMock)
	bus := newRecordingBus()
	bus.failOn[2] = true

	repo.On("PendingNotifications", mock.Anything, fixedNow, 10).Return([]models.NotificationEntry{
		entry(1, "acc-1", 3),
		entry(2, "acc-1", 2),
		entry(3, "acc-1", 1),
	}, nil).Once()
	repo.On("MarkNotificationSent", mock.Anything, int64(1), fixedNow).Return(nil).Once()
	repo.On("MarkNotificationSent", mock.Anything, int64(3), fixedNow).Return(nil).Once()

	res, err := newQueue(repo, bus, WithBatchSize(10)).Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DrainResult{Fetched: 3, Sent: 2, Failed: 1}, res)
	assert.Equal(t, []int64{1, 3}, bus.delivered["acc-1"])
	repo.AssertNotCalled(t, "MarkNotificationSent", mock.Anything, int64(2), mock.Anything)
	repo.AssertExpectations(t)
}

func TestQueue_Drain_MarkFailureLeavesEntryPending(t *testing.T) {
	repo := new(RepoMock)
	bus := newRecordingBus()

	repo.On("PendingNotifications", mock.Anything, fixedNow, 100).Return([]models.NotificationEntry{
		entry(1, "acc-1", 2),
		entry(2, "acc-1", 1),
	}, nil).Once()
	repo.On("MarkNotificationSent", mock.Anything, int64(1), fixedNow).Return(errors.New("db down")).Once()
	repo.On("MarkNotificationSent", mock.Anything, int64(2), fixedNow).Return(nil).Once()

	res, err := newQueue(repo, bus).Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Fetched: 2, Sent: 1, Failed: 1}, res)
	repo.AssertExpectations(t)
}

func TestQueue_Drain_Empty(t *testing.T) {
	repo := new(RepoMock)
	repo.On("PendingNotifications", mock.Anything, fixedNow, 100).Return([]models.NotificationEntry{}, nil).Once()

	res, err := newQueue(repo, newRecordingBus()).Drain(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
}

func TestQueue_Drain_RepositoryError(t *testing.T) {
	repo := new(RepoMock)
	repo.On("PendingNotifications", mock.Anything, fixedNow, 100).Return(nil, errors.New("db down")).Once()

	_, err := newQueue(repo, newRecordingBus()).Drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification.Drain")
}

func TestQueue_EnqueuedSince(t *testing.T) {
	repo := new(RepoMock)
	since := fixedNow.Truncate(24 * time.Hour)
	repo.On("NotificationEnqueuedSince", mock.Anything, "acc-1", models.NotifyTrialExpiringFinal, since).Return(true, nil).Once()

	ok, err := newQueue(repo, newRecordingBus()).EnqueuedSince(context.Background(), "acc-1", models.NotifyTrialExpiringFinal, since)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotificationEvent_Payload(t *testing.T) {
	e := entry(9, "acc-1", 0)
	e.Payload = json.RawMessage(`{"daysRemaining":3}`)

	raw, err := json.Marshal(e.Event())
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9,"type":"TRIAL_EXPIRING_SOON","title":"Trial Expiring Soon","message":"msg","payload":{"daysRemaining":3}}`, string(raw))
}
