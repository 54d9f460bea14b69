// Package session реализует реестр сессий устройств: на аккаунт
// приходится не более одной активной сессии.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const (
	lockTTL   = 5 * time.Second
	lockRetry = 50 * time.Millisecond
)

// Repository описывает хранилище сессий.
type Repository interface {
	ListActiveSessions(ctx context.Context, accountID string) ([]models.Session, error)
	ListAllActiveSessions(ctx context.Context, exceptAccountID string) ([]models.Session, error)
	DeactivateSessions(ctx context.Context, ids []string, at time.Time) (int, error)
	UpsertSession(ctx context.Context, sess models.Session) (*models.Session, error)
	EndSession(ctx context.Context, accountID, deviceID string, at time.Time) (bool, error)
	TouchSession(ctx context.Context, accountID, deviceID string, at time.Time) error
	InsertAudit(ctx context.Context, e models.AuditEntry) error
}

// Publisher публикует события шины.
type Publisher interface {
	Publish(ctx context.Context, scope eventbus.Scope, event string, payload any) error
}

// Locker сериализует вход на одном аккаунте между экземплярами.
type Locker interface {
	Lock(ctx context.Context, key string, ttl, retry time.Duration) (func(), error)
}

// Registry управляет сессиями устройств.
type Registry struct {
	log     *slog.Logger
	repo    Repository
	bus     Publisher
	locker  Locker
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option настраивает Registry.
type Option func(*Registry)

// WithLocker включает блокировку аккаунта на время входа.
func WithLocker(l Locker) Option {
	return func(r *Registry) { r.locker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func New(log *slog.Logger, repo Repository, bus Publisher, opts ...Option) *Registry {
	r := &Registry{
		log:  log,
		repo: repo,
		bus:  bus,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession делает сессию устройства единственной активной сессией
// аккаунта. Остальные сессии деактивируются одним запросом, и каждому
// вытесненному устройству публикуется force_logout. Пустой credentialRef
// сохраняет ранее записанный refresh-токен устройства.
//
// Возвращает новую сессию и число вытесненных устройств.
func (r *Registry) StartSession(ctx context.Context, accountID string, device models.Device, credentialRef, ip string) (*models.Session, int, error) {
	const op = "session.StartSession"
	log := r.log.With(slog.String("op", op), sl.Account(accountID), slog.String("device_id", device.ID))

	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, "session-lock:"+accountID, lockTTL, lockRetry)
		if err != nil {
			// без блокировки вход всё равно выполняется
			log.Warn("failed to acquire account lock", sl.Err(err))
		} else {
			defer unlock()
		}
	}

	active, err := r.repo.ListActiveSessions(ctx, accountID)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	now := r.now()
	others := make([]models.Session, 0, len(active))
	ids := make([]string, 0, len(active))
	for _, s := range active {
		if s.Device.ID == device.ID {
			continue
		}
		others = append(others, s)
		ids = append(ids, s.ID)
	}

	if len(ids) > 0 {
		if _, err := r.repo.DeactivateSessions(ctx, ids, now); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		for _, s := range others {
			r.publishEviction(ctx, log, accountID, s.Device.ID, eventbus.ReasonNewDevice, "Logged in from another device")
		}
		r.metrics.ForcedLogout(eventbus.ReasonNewDevice, len(others))
		log.Info("superseded other devices", slog.Int("count", len(others)))
	}

	sess, err := r.repo.UpsertSession(ctx, models.Session{
		AccountID:     accountID,
		Device:        device,
		CredentialRef: credentialRef,
		IPAddress:     ip,
		IsActive:      true,
		LoginTime:     now,
		LastActivity:  now,
	})
	if err != nil {
		return nil, len(others), fmt.Errorf("%s: %w", op, err)
	}
	return sess, len(others), nil
}

// EndSession завершает сессию устройства по его же запросу.
// Повторный вызов ничего не меняет.
func (r *Registry) EndSession(ctx context.Context, accountID, deviceID string) error {
	const op = "session.EndSession"

	ended, err := r.repo.EndSession(ctx, accountID, deviceID, r.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ended {
		r.log.Debug("session ended", sl.Account(accountID), slog.String("device_id", deviceID))
	}
	return nil
}

// Touch отмечает активность устройства.
func (r *Registry) Touch(ctx context.Context, accountID, deviceID string) error {
	const op = "session.Touch"
	if err := r.repo.TouchSession(ctx, accountID, deviceID, r.now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ForceEnd завершает сессию устройства по решению администратора,
// уведомляет устройство и пишет запись аудита. Как и EndSession,
// идемпотентен: отсутствие активной сессии не ошибка.
func (r *Registry) ForceEnd(ctx context.Context, accountID, deviceID string, actor models.Identity, ip string) error {
	const op = "session.ForceEnd"
	if !actor.IsAdmin() {
		return fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	log := r.log.With(slog.String("op", op), sl.Account(accountID), slog.String("device_id", deviceID))

	ended, err := r.repo.EndSession(ctx, accountID, deviceID, r.now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// уведомляем даже без активной сессии: устройство могло остаться подключённым
	r.publishEviction(ctx, log, accountID, deviceID, eventbus.ReasonAdmin, "Administrator logged you out")
	r.audit(ctx, log, actor, models.AuditForceLogout, "session", accountID, ip, map[string]any{
		"deviceId": deviceID,
		"ended":    ended,
	})

	if !ended {
		log.Info("no active session to force-end", slog.String("actor", actor.AccountID))
		return nil
	}
	r.metrics.ForcedLogout(eventbus.ReasonAdmin, 1)
	log.Info("session force-ended", slog.String("actor", actor.AccountID))
	return nil
}

// ForceEndAll завершает все активные сессии, кроме сессий самого
// администратора. Возвращает число завершённых сессий.
func (r *Registry) ForceEndAll(ctx context.Context, actor models.Identity, ip string) (int, error) {
	const op = "session.ForceEndAll"
	if !actor.IsAdmin() {
		return 0, fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	log := r.log.With(slog.String("op", op), slog.String("actor", actor.AccountID))

	active, err := r.repo.ListAllActiveSessions(ctx, actor.AccountID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(active) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(active))
	for _, s := range active {
		ids = append(ids, s.ID)
	}
	n, err := r.repo.DeactivateSessions(ctx, ids, r.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, s := range active {
		r.publishEviction(ctx, log, s.AccountID, s.Device.ID, eventbus.ReasonAdminAll, "Administrator logged out all devices")
	}
	r.audit(ctx, log, actor, models.AuditForceLogoutAll, "session", "*", ip, map[string]any{
		"sessions": n,
	})
	r.metrics.ForcedLogout(eventbus.ReasonAdminAll, n)
	log.Info("all sessions force-ended", slog.Int("count", n))
	return n, nil
}

// ActiveSessions возвращает активные сессии аккаунта.
func (r *Registry) ActiveSessions(ctx context.Context, accountID string) ([]models.Session, error) {
	const op = "session.ActiveSessions"
	sessions, err := r.repo.ListActiveSessions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sessions, nil
}

func (r *Registry) publishEviction(ctx context.Context, log *slog.Logger, accountID, deviceID, reason, message string) {
	err := r.bus.Publish(ctx, eventbus.AccountScope(accountID), eventbus.EventForceLogout, eventbus.ForceLogout{
		Reason:   reason,
		Message:  message,
		DeviceID: deviceID,
	})
	switch {
	case errors.Is(err, eventbus.ErrNoSubscribers):
		log.Debug("evicted device is offline", slog.String("evicted_device", deviceID))
	case err != nil:
		log.Warn("failed to publish force_logout", sl.Err(err))
	}
}

func (r *Registry) audit(ctx context.Context, log *slog.Logger, actor models.Identity, action, entityType, entityID, ip string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		log.Error("failed to encode audit details", sl.Err(err))
		return
	}
	actorID := actor.AccountID
	if err := r.repo.InsertAudit(ctx, models.AuditEntry{
		ActorID:    &actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    raw,
		IPAddress:  ip,
		CreatedAt:  r.now(),
	}); err != nil {
		log.Error("failed to write audit entry", sl.Err(err))
	}
}
