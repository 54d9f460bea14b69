// Package notification реализует долговременную очередь уведомлений:
// запись сначала сохраняется, затем периодически доставляется подключённым
// устройствам аккаунта с повторами до успеха.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const (
	defaultBatchSize   = 100
	defaultConcurrency = 8
)

// Repository описывает хранилище очереди.
type Repository interface {
	InsertNotification(ctx context.Context, n models.NotificationEntry) (int64, error)
	PendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.NotificationEntry, error)
	MarkNotificationSent(ctx context.Context, id int64, at time.Time) error
	NotificationEnqueuedSince(ctx context.Context, accountID, typ string, since time.Time) (bool, error)
}

// Publisher публикует события шины.
type Publisher interface {
	Publish(ctx context.Context, scope eventbus.Scope, event string, payload any) error
}

// Notice уведомление для постановки в очередь.
// Нулевой ScheduledFor означает немедленную доставку.
type Notice struct {
	AccountID    string
	Type         string
	Title        string
	Message      string
	Payload      any
	ScheduledFor time.Time
}

// DrainResult итог одного прохода доставки.
type DrainResult struct {
	Fetched int
	Sent    int
	Failed  int
}

type Queue struct {
	log         *slog.Logger
	repo        Repository
	bus         Publisher
	metrics     *metrics.Metrics
	now         func() time.Time
	batchSize   int
	concurrency int
}

type Option func(*Queue)

func WithBatchSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.batchSize = n
		}
	}
}

// WithConcurrency ограничивает число аккаунтов, обрабатываемых одновременно.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func New(log *slog.Logger, repo Repository, bus Publisher, opts ...Option) *Queue {
	q := &Queue{
		log:         log,
		repo:        repo,
		bus:         bus,
		now:         time.Now,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue сохраняет уведомление и, если оно не отложено, сразу пытается
// доставить его. Ошибка быстрой доставки не возвращается: запись всё
// равно будет доставлена при очередном проходе Drain.
func (q *Queue) Enqueue(ctx context.Context, n Notice) (int64, error) {
	const op = "notification.Enqueue"

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	now := q.now()
	scheduled := n.ScheduledFor
	if scheduled.IsZero() {
		scheduled = now
	}

	entry := models.NotificationEntry{
		AccountID:    n.AccountID,
		Type:         n.Type,
		Title:        n.Title,
		Message:      n.Message,
		Payload:      payload,
		ScheduledFor: scheduled,
	}
	id, err := q.repo.InsertNotification(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	entry.ID = id
	q.metrics.NotificationEnqueued(n.Type)

	if !scheduled.After(now) {
		if err := q.bus.Publish(ctx, eventbus.AccountScope(n.AccountID), eventbus.EventNotification, entry.Event()); err != nil &&
			!errors.Is(err, eventbus.ErrNoSubscribers) {
			q.log.Debug("fast-path notification publish failed", slog.Int64("id", id), sl.Err(err))
		}
	}
	return id, nil
}

// EnqueuedSince сообщает, ставилось ли уведомление типа typ для аккаунта
// начиная с since.
func (q *Queue) EnqueuedSince(ctx context.Context, accountID, typ string, since time.Time) (bool, error) {
	const op = "notification.EnqueuedSince"
	ok, err := q.repo.NotificationEnqueuedSince(ctx, accountID, typ, since)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// Drain доставляет до batchSize наступивших записей. Записи разных
// аккаунтов обрабатываются независимо, записи одного аккаунта по
// возрастанию scheduledFor. Недоставленная запись остаётся в очереди до
// следующего прохода, обработка продолжается со следующей записи.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	const op = "notification.Drain"

	pending, err := q.repo.PendingNotifications(ctx, q.now(), q.batchSize)
	if err != nil {
		return DrainResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(pending) == 0 {
		return DrainResult{}, nil
	}

	order := make([]string, 0)
	byAccount := make(map[string][]models.NotificationEntry)
	for _, n := range pending {
		if _, ok := byAccount[n.AccountID]; !ok {
			order = append(order, n.AccountID)
		}
		byAccount[n.AccountID] = append(byAccount[n.AccountID], n)
	}

	var sent, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(q.concurrency)
	for _, accountID := range order {
		entries := byAccount[accountID]
		g.Go(func() error {
			s, f := q.drainAccount(ctx, accountID, entries)
			sent.Add(int64(s))
			failed.Add(int64(f))
			return nil
		})
	}
	_ = g.Wait()

	res := DrainResult{Fetched: len(pending), Sent: int(sent.Load()), Failed: int(failed.Load())}
	q.log.Info("notification queue drained",
		slog.Int("fetched", res.Fetched),
		slog.Int("sent", res.Sent),
		slog.Int("pending", res.Failed),
	)
	return res, nil
}

func (q *Queue) drainAccount(ctx context.Context, accountID string, entries []models.NotificationEntry) (sent, failed int) {
	log := q.log.With(sl.Account(accountID))

	for _, n := range entries {
		err := q.bus.Publish(ctx, eventbus.AccountScope(accountID), eventbus.EventNotification, n.Event())
		if err != nil {
			if !errors.Is(err, eventbus.ErrNoSubscribers) {
				log.Warn("failed to deliver notification", slog.Int64("id", n.ID), sl.Err(err))
			}
			failed++
			q.metrics.NotificationDrained(false)
			continue
		}

		if err := q.repo.MarkNotificationSent(ctx, n.ID, q.now()); err != nil {
			// запись уже доставлена; повторная доставка допустима
			log.Error("failed to mark notification sent", slog.Int64("id", n.ID), sl.Err(err))
			failed++
			q.metrics.NotificationDrained(false)
			continue
		}
		sent++
		q.metrics.NotificationDrained(true)
	}
	return sent, failed
}
