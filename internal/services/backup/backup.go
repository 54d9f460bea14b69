// Package backup снимает копии данных аккаунта и восстанавливает их.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// Repository описывает хранилище, из которого читаются и в которое
// восстанавливаются данные аккаунта.
type Repository interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	ListVehiclesByOperator(ctx context.Context, operatorID string) ([]models.Vehicle, error)
	ListPreferences(ctx context.Context, accountID string) ([]models.Preference, error)
	InsertBackup(ctx context.Context, accountID string, bundle models.BackupBundle, createdBy *string) (int64, error)
	LatestBackup(ctx context.Context, accountID string) (*models.BackupSnapshot, error)
	InsertVehicleIfAbsent(ctx context.Context, v models.Vehicle) (bool, error)
	UpsertPreference(ctx context.Context, accountID string, p models.Preference) error
	MarkBackupRestored(ctx context.Context, id int64, at time.Time) error
	InsertAudit(ctx context.Context, e models.AuditEntry) error
}

type Engine struct {
	log     *slog.Logger
	repo    Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(log *slog.Logger, repo Repository, opts ...Option) *Engine {
	e := &Engine{
		log:  log,
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot сохраняет текущие данные аккаунта одной записью.
// actor nil означает системный снимок; для снимка администратора
// дополнительно пишется запись аудита.
func (e *Engine) Snapshot(ctx context.Context, accountID, reason string, actor *string) (*models.BackupSnapshot, error) {
	const op = "backup.Snapshot"

	account, err := e.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	vehicles, err := e.repo.ListVehiclesByOperator(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	prefs, err := e.repo.ListPreferences(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := e.now()
	bundle := models.BackupBundle{
		Account:     models.SnapshotOf(account),
		Vehicles:    vehicles,
		Preferences: prefs,
		BackupDate:  now,
		Reason:      reason,
	}
	if bundle.Vehicles == nil {
		bundle.Vehicles = []models.Vehicle{}
	}
	if bundle.Preferences == nil {
		bundle.Preferences = []models.Preference{}
	}

	id, err := e.repo.InsertBackup(ctx, accountID, bundle, actor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if actor != nil {
		e.audit(ctx, actor, models.AuditBackupUserData, accountID, map[string]any{
			"backupId": id,
			"reason":   reason,
			"vehicles": len(vehicles),
			"settings": len(prefs),
		})
	}

	e.log.Info("backup created",
		sl.Account(accountID),
		slog.Int64("backup_id", id),
		slog.String("reason", reason),
		slog.Int("vehicles", len(vehicles)),
		slog.Int("settings", len(prefs)),
	)
	return &models.BackupSnapshot{
		ID:               id,
		AccountID:        accountID,
		Bundle:           bundle,
		CreatedAt:        now,
		CreatedByAdminID: actor,
	}, nil
}

// Restore возвращает данные из последнего снимка аккаунта. Отсутствующие
// транспортные средства вставляются, существующие не трогаются;
// настройки перезаписываются. Ошибка отдельной записи учитывается в
// RestoreResult.Failed и не прерывает восстановление. Повторный вызов
// безопасен.
func (e *Engine) Restore(ctx context.Context, accountID string, actor *string) (models.RestoreResult, error) {
	const op = "backup.Restore"
	log := e.log.With(slog.String("op", op), sl.Account(accountID))

	snap, err := e.repo.LatestBackup(ctx, accountID)
	if errors.Is(err, models.ErrSnapshotNotFound) {
		log.Info("no backup to restore")
		e.metrics.Restore(false)
		return models.RestoreResult{Success: false, Message: "No backup data found"}, nil
	}
	if err != nil {
		return models.RestoreResult{}, fmt.Errorf("%s: %w", op, err)
	}

	res := models.RestoreResult{
		Success:    true,
		Message:    "Data restored successfully",
		SnapshotID: snap.ID,
		BackupDate: &snap.CreatedAt,
	}

	for _, v := range snap.Bundle.Vehicles {
		v.OperatorID = accountID
		inserted, err := e.repo.InsertVehicleIfAbsent(ctx, v)
		if err != nil {
			res.Failed.Vehicles++
			log.Warn("failed to restore vehicle", slog.String("vehicle_id", v.ID), sl.Err(err))
			continue
		}
		if inserted {
			res.Restored.Vehicles++
		}
	}

	for _, p := range snap.Bundle.Preferences {
		if err := e.repo.UpsertPreference(ctx, accountID, p); err != nil {
			res.Failed.Preferences++
			log.Warn("failed to restore setting", slog.String("key", p.Key), sl.Err(err))
			continue
		}
		res.Restored.Preferences++
	}

	if err := e.repo.MarkBackupRestored(ctx, snap.ID, e.now()); err != nil {
		log.Error("failed to stamp backup as restored", slog.Int64("backup_id", snap.ID), sl.Err(err))
	}
	e.audit(ctx, actor, models.AuditRestoreUserData, accountID, map[string]any{
		"backupId":      snap.ID,
		"restoredItems": res.Restored,
		"failedItems":   res.Failed,
	})
	e.metrics.Restore(true)

	log.Info("data restored",
		slog.Int64("backup_id", snap.ID),
		slog.Int("vehicles", res.Restored.Vehicles),
		slog.Int("settings", res.Restored.Preferences),
		slog.Int("failed", res.Failed.Vehicles+res.Failed.Preferences),
	)
	return res, nil
}

func (e *Engine) audit(ctx context.Context, actor *string, action, accountID string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		e.log.Error("failed to encode audit details", sl.Err(err))
		return
	}
	if err := e.repo.InsertAudit(ctx, models.AuditEntry{
		ActorID:    actor,
		Action:     action,
		EntityType: "user",
		EntityID:   accountID,
		Details:    raw,
		CreatedAt:  e.now(),
	}); err != nil {
		e.log.Error("failed to write audit entry", slog.String("action", action), sl.Err(err))
	}
}
