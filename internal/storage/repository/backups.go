package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// InsertBackup добавляет снимок одной записью. createdBy nil означает систему.
func (s *Storage) InsertBackup(ctx context.Context, accountID string, bundle models.BackupBundle, createdBy *string) (int64, error) {
	const op = "storage.InsertBackup"
	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var id int64
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO user_backups (user_id, backup_data, created_by_admin_id)
		 VALUES ($1, $2, $3)
		 RETURNING id`, accountID, string(data), createdBy).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// LatestBackup возвращает самый свежий снимок аккаунта.
func (s *Storage) LatestBackup(ctx context.Context, accountID string) (*models.BackupSnapshot, error) {
	const op = "storage.LatestBackup"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	var (
		snap       models.BackupSnapshot
		data       []byte
		restoredAt sql.NullTime
		createdBy  sql.NullString
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, backup_data, created_at, restored_at, created_by_admin_id
		 FROM user_backups
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, accountID).
		Scan(&snap.ID, &snap.AccountID, &data, &snap.CreatedAt, &restoredAt, &createdBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(data, &snap.Bundle); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if restoredAt.Valid {
		snap.RestoredAt = &restoredAt.Time
	}
	if createdBy.Valid {
		snap.CreatedByAdminID = &createdBy.String
	}
	return &snap, nil
}

// MarkBackupRestored проставляет время восстановления снимка.
func (s *Storage) MarkBackupRestored(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.MarkBackupRestored"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE user_backups SET restored_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
