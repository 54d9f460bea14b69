package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// ListPreferences возвращает настройки аккаунта.
func (s *Storage) ListPreferences(ctx context.Context, accountID string) ([]models.Preference, error) {
	const op = "storage.ListPreferences"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE user_id = $1 ORDER BY key`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := []models.Preference{}
	for rows.Next() {
		var p models.Preference
		var value []byte
		if err = rows.Scan(&p.Key, &value); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.Value = value
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpsertPreference записывает значение настройки, перезаписывая текущее.
func (s *Storage) UpsertPreference(ctx context.Context, accountID string, p models.Preference) error {
	const op = "storage.UpsertPreference"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx,
		`INSERT INTO settings (user_id, key, value, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		accountID, p.Key, jsonArg(p.Value)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
