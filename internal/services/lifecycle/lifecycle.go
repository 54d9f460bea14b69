// Package lifecycle ведёт аккаунты по жизненному циклу подписки:
// предупреждение, истечение с деактивацией, продление с восстановлением
// данных. Состояние аккаунта не хранится, а вычисляется из дат.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/config"
	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/days"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/notification"
)

// ErrInvalidDays число дней продления или окна должно быть положительным.
var ErrInvalidDays = errors.New("days must be a positive number")

// Repository описывает хранилище аккаунтов и истории продлений.
type Repository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	FindAccountsEndingBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error)
	FindAccountsEndedBefore(ctx context.Context, before time.Time) ([]*models.Account, error)
	DeactivateAccount(ctx context.Context, id string) error
	ApplyExtension(ctx context.Context, entry models.SubscriptionHistoryEntry) (*models.SubscriptionHistoryEntry, error)
	ListHistory(ctx context.Context, accountID string) ([]models.SubscriptionHistoryEntry, error)
	InsertAudit(ctx context.Context, e models.AuditEntry) error
}

// Backups снимает и восстанавливает копии данных аккаунта.
type Backups interface {
	Snapshot(ctx context.Context, accountID, reason string, actor *string) (*models.BackupSnapshot, error)
	Restore(ctx context.Context, accountID string, actor *string) (models.RestoreResult, error)
}

// Notifier ставит уведомления в долговременную очередь.
type Notifier interface {
	Enqueue(ctx context.Context, n notification.Notice) (int64, error)
	EnqueuedSince(ctx context.Context, accountID, typ string, since time.Time) (bool, error)
}

// Publisher публикует события шины.
type Publisher interface {
	Publish(ctx context.Context, scope eventbus.Scope, event string, payload any) error
}

// ScanResult итог прохода фоновой задачи.
type ScanResult struct {
	Scanned  int
	Affected int
	Skipped  int
	Failed   int
}

// Extension итог продления подписки.
type Extension struct {
	Entry      *models.SubscriptionHistoryEntry `json:"entry"`
	NewEndDate time.Time                        `json:"newEndDate"`
	Restore    models.RestoreResult             `json:"dataRestoration"`
}

type Manager struct {
	log      *slog.Logger
	repo     Repository
	backups  Backups
	notifier Notifier
	bus      Publisher
	metrics  *metrics.Metrics
	now      func() time.Time
	loc      *time.Location
	warnDays []int
}

type Option func(*Manager)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(mg *Manager) { mg.now = now }
}

func New(log *slog.Logger, repo Repository, backups Backups, notifier Notifier, bus Publisher, cfg config.Lifecycle, opts ...Option) *Manager {
	warn := make([]int, 0, len(cfg.WarnDays))
	for _, d := range cfg.WarnDays {
		if d > 0 {
			warn = append(warn, d)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(warn)))

	m := &Manager{
		log:      log,
		repo:     repo,
		backups:  backups,
		notifier: notifier,
		bus:      bus,
		now:      time.Now,
		loc:      cfg.Location(),
		warnDays: warn,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RunWarningScan предупреждает аккаунты, у которых доступ заканчивается
// через одно из заданных чисел дней. Перед уведомлением снимается копия
// данных. Повторный запуск в тот же день уведомление не дублирует.
func (m *Manager) RunWarningScan(ctx context.Context) (ScanResult, error) {
	const op = "lifecycle.RunWarningScan"
	log := m.log.With(slog.String("op", op))

	now := m.now()
	today := days.StartOfDay(now, m.loc)
	var res ScanResult

	for _, offset := range m.warnDays {
		from, to := days.Window(now, offset, m.loc)
		accounts, err := m.repo.FindAccountsEndingBetween(ctx, from, to)
		if err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}

		typ := models.NotifyTrialExpiringSoon
		if offset == 1 {
			typ = models.NotifyTrialExpiringFinal
		}

		for _, a := range accounts {
			res.Scanned++
			if a.IsAdmin() || !a.State(now).Eligible() {
				res.Skipped++
				continue
			}
			sent, err := m.notifier.EnqueuedSince(ctx, a.ID, typ, today)
			if err != nil {
				log.Error("failed to check previous warning", sl.Account(a.ID), sl.Err(err))
				res.Failed++
				continue
			}
			if sent {
				res.Skipped++
				continue
			}
			if err := m.warn(ctx, a, typ, offset); err != nil {
				log.Error("failed to warn account", sl.Account(a.ID), sl.Err(err))
				res.Failed++
				continue
			}
			res.Affected++
		}
	}

	log.Info("warning scan finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("warned", res.Affected),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (m *Manager) warn(ctx context.Context, a *models.Account, typ string, offset int) error {
	snap, err := m.backups.Snapshot(ctx, a.ID, models.BackupReasonWarning, nil)
	if err != nil {
		return err
	}

	what := "free trial"
	if a.IsPaid {
		what = "subscription"
	}
	title := "Trial Expiring Soon"
	message := fmt.Sprintf("Your %s expires in %d days. Your parking data is automatically backed up and will be restored when your subscription is extended.", what, offset)
	if typ == models.NotifyTrialExpiringFinal {
		title = "Final Notice: Access Expires Tomorrow"
		message = fmt.Sprintf("Your %s expires tomorrow! Your parking data is safely backed up and will be restored when you extend your subscription. Contact your administrator to continue using ParkEase.", what)
	}

	if _, err := m.notifier.Enqueue(ctx, notification.Notice{
		AccountID: a.ID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Payload: map[string]any{
			"daysRemaining":  offset,
			"expirationDate": a.EndDate(),
			"isFinalWarning": typ == models.NotifyTrialExpiringFinal,
			"backupInfo": map[string]any{
				"dataBackedUp":     true,
				"restoreAvailable": true,
				"backupId":         snap.ID,
				"backupDate":       snap.CreatedAt,
			},
		},
	}); err != nil {
		return err
	}
	m.metrics.LifecycleAction("warned")
	return nil
}

// RunExpirationScan деактивирует аккаунты с истёкшим доступом. Аккаунт
// деактивируется только после успешного финального снимка данных.
func (m *Manager) RunExpirationScan(ctx context.Context) (ScanResult, error) {
	const op = "lifecycle.RunExpirationScan"
	log := m.log.With(slog.String("op", op))

	now := m.now()
	accounts, err := m.repo.FindAccountsEndedBefore(ctx, now)
	if err != nil {
		return ScanResult{}, fmt.Errorf("%s: %w", op, err)
	}

	var res ScanResult
	for _, a := range accounts {
		res.Scanned++
		if a.IsAdmin() || a.State(now).Kind != models.StateExpired {
			res.Skipped++
			continue
		}
		if err := m.expire(ctx, a, now); err != nil {
			log.Error("failed to expire account", sl.Account(a.ID), sl.Err(err))
			res.Failed++
			continue
		}
		res.Affected++
	}

	log.Info("expiration scan finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("expired", res.Affected),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func (m *Manager) expire(ctx context.Context, a *models.Account, now time.Time) error {
	if _, err := m.backups.Snapshot(ctx, a.ID, models.BackupReasonExpiration, nil); err != nil {
		return fmt.Errorf("final backup: %w", err)
	}
	if err := m.repo.DeactivateAccount(ctx, a.ID); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}

	if _, err := m.notifier.Enqueue(ctx, notification.Notice{
		AccountID: a.ID,
		Type:      models.NotifyTrialExpired,
		Title:     "Trial Expired",
		Message:   "Your free trial has ended. Your data is safely backed up and will be restored when your subscription is renewed. Contact your administrator to continue using ParkEase.",
		Payload: map[string]any{
			"userId":       a.ID,
			"expiredDate":  now,
			"dataBackedUp": true,
		},
	}); err != nil {
		// аккаунт уже деактивирован, уведомление не критично
		m.log.Warn("failed to enqueue expiration notice", sl.Account(a.ID), sl.Err(err))
	}

	m.notifyAdmins(ctx, "expired", a.ID, map[string]any{"username": a.Username})
	m.metrics.LifecycleAction("expired")
	m.log.Info("account expired and deactivated", sl.Account(a.ID), slog.String("username", a.Username))
	return nil
}

// Extend продлевает доступ аккаунта на daysToAdd дней от более поздней из
// дат: сейчас, конец пробного периода, конец подписки. Затем данные
// восстанавливаются из последнего снимка и аккаунт получает уведомление.
func (m *Manager) Extend(ctx context.Context, accountID string, daysToAdd int, extensionType string, actor models.Identity, ip string) (*Extension, error) {
	const op = "lifecycle.Extend"

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	if daysToAdd <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidDays)
	}
	if extensionType == "" {
		extensionType = models.ExtensionManual
	}
	log := m.log.With(slog.String("op", op), sl.Account(accountID), slog.String("actor", actor.AccountID))

	account, err := m.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := m.now()
	base := days.Later(now, account.TrialEndDate, account.SubscriptionEndDate)
	newEnd := base.AddDate(0, 0, daysToAdd)

	entry, err := m.repo.ApplyExtension(ctx, models.SubscriptionHistoryEntry{
		AccountID:         accountID,
		ExtendedByAdminID: actor.AccountID,
		DaysAdded:         daysToAdd,
		ExtensionType:     extensionType,
		NewEndDate:        newEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	details, _ := json.Marshal(map[string]any{
		"days":       daysToAdd,
		"newEndDate": newEnd,
		"type":       extensionType,
	})
	actorID := actor.AccountID
	if err := m.repo.InsertAudit(ctx, models.AuditEntry{
		ActorID:    &actorID,
		Action:     models.AuditExtendSubscription,
		EntityType: "user",
		EntityID:   accountID,
		Details:    details,
		IPAddress:  ip,
		CreatedAt:  now,
	}); err != nil {
		log.Error("failed to write audit entry", sl.Err(err))
	}

	restore, err := m.backups.Restore(ctx, accountID, &actorID)
	if err != nil {
		log.Error("restore after extension failed", sl.Err(err))
		restore = models.RestoreResult{Success: false, Message: "Restore failed"}
	}

	message := fmt.Sprintf("Your subscription has been extended by %d days until %s.", daysToAdd, newEnd.In(m.loc).Format("Mon Jan 02 2006"))
	if restore.Success {
		message += " Your data has been restored!"
	}
	if _, err := m.notifier.Enqueue(ctx, notification.Notice{
		AccountID: accountID,
		Type:      models.NotifySubscriptionExtended,
		Title:     "Subscription Extended",
		Message:   message,
		Payload: map[string]any{
			"newEndDate":    newEnd,
			"dataRestored":  restore.Success,
			"restoredItems": restore.Restored,
		},
	}); err != nil {
		log.Warn("failed to enqueue extension notice", sl.Err(err))
	}

	m.notifyAdmins(ctx, "extended", accountID, map[string]any{
		"days":       daysToAdd,
		"newEndDate": newEnd,
	})
	m.metrics.LifecycleAction("extended")
	log.Info("subscription extended", slog.Int("days", daysToAdd), slog.Time("new_end", newEnd))

	return &Extension{Entry: entry, NewEndDate: newEnd, Restore: restore}, nil
}

// Expiring возвращает активные аккаунты, доступ которых заканчивается
// в ближайшие windowDays календарных дней, ближайшие первыми.
func (m *Manager) Expiring(ctx context.Context, windowDays int) ([]models.ExpiringAccount, error) {
	const op = "lifecycle.Expiring"
	if windowDays <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidDays)
	}

	now := m.now()
	_, to := days.Window(now, windowDays, m.loc)
	accounts, err := m.repo.FindAccountsEndingBetween(ctx, now, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]models.ExpiringAccount, 0, len(accounts))
	for _, a := range accounts {
		end := a.EndDate()
		if end == nil {
			continue
		}
		result = append(result, models.ExpiringAccount{
			ID:            a.ID,
			Username:      a.Username,
			FullName:      a.FullName,
			IsGuest:       a.IsGuest,
			IsPaid:        a.IsPaid,
			EndsAt:        end,
			DaysRemaining: days.Between(now, *end, m.loc),
		})
	}
	return result, nil
}

// History возвращает историю продлений аккаунта.
func (m *Manager) History(ctx context.Context, accountID string) ([]models.SubscriptionHistoryEntry, error) {
	const op = "lifecycle.History"
	if _, err := m.repo.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	history, err := m.repo.ListHistory(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return history, nil
}

// State возвращает текущее состояние жизненного цикла аккаунта.
func (m *Manager) State(ctx context.Context, accountID string) (models.LifecycleState, error) {
	const op = "lifecycle.State"
	account, err := m.repo.GetAccount(ctx, accountID)
	if err != nil {
		return models.LifecycleState{}, fmt.Errorf("%s: %w", op, err)
	}
	return account.State(m.now()), nil
}

// BackupNow снимает копию данных по запросу администратора.
func (m *Manager) BackupNow(ctx context.Context, accountID string, actor models.Identity) (*models.BackupSnapshot, error) {
	const op = "lifecycle.BackupNow"
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	actorID := actor.AccountID
	snap, err := m.backups.Snapshot(ctx, accountID, models.BackupReasonManual, &actorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return snap, nil
}

// Restore восстанавливает данные из последнего снимка по запросу администратора.
func (m *Manager) Restore(ctx context.Context, accountID string, actor models.Identity) (models.RestoreResult, error) {
	const op = "lifecycle.Restore"
	if !actor.IsAdmin() {
		return models.RestoreResult{}, fmt.Errorf("%s: %w", op, models.ErrForbidden)
	}
	if _, err := m.repo.GetAccount(ctx, accountID); err != nil {
		return models.RestoreResult{}, fmt.Errorf("%s: %w", op, err)
	}
	actorID := actor.AccountID
	res, err := m.backups.Restore(ctx, accountID, &actorID)
	if err != nil {
		return models.RestoreResult{}, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (m *Manager) notifyAdmins(ctx context.Context, action, accountID string, data any) {
	err := m.bus.Publish(ctx, eventbus.AdminScope(), eventbus.EventDashboardUpdate, eventbus.DashboardUpdate{
		Domain:    "subscription",
		Action:    action,
		AccountID: accountID,
		Data:      data,
	})
	if err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
		m.log.Warn("failed to publish dashboard update", sl.Err(err))
	}
}
