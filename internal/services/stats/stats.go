// Package stats собирает операционный срез для администраторов и
// периодически рассылает его.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/days"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const (
	cacheKey = "stats:snapshot"
	cacheTTL = 10 * time.Second
)

type Repository interface {
	Stats(ctx context.Context, dayStart, dayEnd time.Time) (models.Stats, error)
}

// Cache кэш снимка статистики.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Counter сообщает число подключённых клиентов.
type Counter interface {
	Connected() int
}

type Publisher interface {
	Publish(ctx context.Context, scope eventbus.Scope, event string, payload any) error
}

type Service struct {
	log     *slog.Logger
	repo    Repository
	cache   Cache
	clients Counter
	bus     Publisher
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Service)

// WithCache включает кэширование снимка.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(log *slog.Logger, repo Repository, clients Counter, bus Publisher, loc *time.Location, opts ...Option) *Service {
	s := &Service{
		log:     log,
		repo:    repo,
		clients: clients,
		bus:     bus,
		loc:     loc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot возвращает текущий срез. Данные хранилища кэшируются на
// несколько секунд, число подключений всегда актуально.
func (s *Service) Snapshot(ctx context.Context) (models.Stats, error) {
	const op = "stats.Snapshot"

	var st models.Stats
	found := false
	if s.cache != nil {
		var err error
		found, err = s.cache.Get(ctx, cacheKey, &st)
		if err != nil {
			s.log.Warn("failed to read stats from cache", sl.Err(err))
			found = false
		}
	}

	if !found {
		now := s.now()
		from, to := days.Window(now, 0, s.loc)
		var err error
		st, err = s.repo.Stats(ctx, from, to)
		if err != nil {
			return models.Stats{}, fmt.Errorf("%s: %w", op, err)
		}
		st.Timestamp = now
		if s.cache != nil {
			if err := s.cache.Set(ctx, cacheKey, st, cacheTTL); err != nil {
				s.log.Warn("failed to cache stats", sl.Err(err))
			}
		}
	}

	st.ConnectedClients = s.clients.Connected()
	return st, nil
}

// Invalidate сбрасывает кэшированный срез после изменения данных.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheKey); err != nil {
		s.log.Warn("failed to invalidate stats cache", sl.Err(err))
	}
}

// Heartbeat рассылает срез администраторам. Отсутствие подключённых
// администраторов ошибкой не считается.
func (s *Service) Heartbeat(ctx context.Context) error {
	const op = "stats.Heartbeat"

	st, err := s.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	err = s.bus.Publish(ctx, eventbus.AdminScope(), eventbus.EventStatsUpdate, st)
	if err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
