package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const sessionColumns = `id, user_id, device_id, device_name, device_platform, token, ip_address,
	is_active, login_time, logout_time, last_activity`

func scanSession(row rowScanner) (models.Session, error) {
	var s models.Session
	var logout sql.NullTime
	if err := row.Scan(&s.ID, &s.AccountID, &s.Device.ID, &s.Device.Name, &s.Device.Platform,
		&s.CredentialRef, &s.IPAddress, &s.IsActive, &s.LoginTime, &logout, &s.LastActivity); err != nil {
		return models.Session{}, err
	}
	if logout.Valid {
		s.LogoutTime = &logout.Time
	}
	return s, nil
}

func (s *Storage) querySessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

// ListActiveSessions возвращает активные сессии аккаунта.
func (s *Storage) ListActiveSessions(ctx context.Context, accountID string) ([]models.Session, error) {
	const op = "storage.ListActiveSessions"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	result, err := s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = $1 AND is_active ORDER BY login_time`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListAllActiveSessions возвращает все активные сессии, кроме сессий exceptAccountID.
func (s *Storage) ListAllActiveSessions(ctx context.Context, exceptAccountID string) ([]models.Session, error) {
	const op = "storage.ListAllActiveSessions"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	result, err := s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE is_active AND user_id <> $1 ORDER BY user_id, login_time`,
		exceptAccountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeactivateSessions одним запросом завершает сессии с указанными ID.
// Уже неактивные сессии не изменяются. Возвращает число завершённых.
func (s *Storage) DeactivateSessions(ctx context.Context, ids []string, at time.Time) (int, error) {
	const op = "storage.DeactivateSessions"
	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE, logout_time = $1
		 WHERE id = ANY($2) AND is_active`, at, ids)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(n), nil
}

// UpsertSession создаёт сессию устройства или реактивирует существующую.
// Пустой CredentialRef сохраняет ранее записанный токен.
func (s *Storage) UpsertSession(ctx context.Context, sess models.Session) (*models.Session, error) {
	const op = "storage.UpsertSession"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `INSERT INTO sessions (user_id, device_id, device_name, device_platform, token,
			      ip_address, is_active, login_time, logout_time, last_activity)
			  VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, NULL, $7)
			  ON CONFLICT (user_id, device_id) DO UPDATE SET
			      device_name = EXCLUDED.device_name,
			      device_platform = EXCLUDED.device_platform,
			      token = CASE WHEN EXCLUDED.token = '' THEN sessions.token ELSE EXCLUDED.token END,
			      ip_address = EXCLUDED.ip_address,
			      is_active = TRUE,
			      login_time = EXCLUDED.login_time,
			      logout_time = NULL,
			      last_activity = EXCLUDED.last_activity
			  RETURNING ` + sessionColumns
	row := s.DB.QueryRowContext(ctx, query,
		sess.AccountID, sess.Device.ID, sess.Device.Name, sess.Device.Platform,
		sess.CredentialRef, sess.IPAddress, sess.LoginTime)
	saved, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &saved, nil
}

// EndSession завершает активную сессию устройства.
// Возвращает false, если активной сессии не было.
func (s *Storage) EndSession(ctx context.Context, accountID, deviceID string, at time.Time) (bool, error) {
	const op = "storage.EndSession"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET is_active = FALSE, logout_time = $1
		 WHERE user_id = $2 AND device_id = $3 AND is_active`, at, accountID, deviceID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// GetActiveSessionByToken ищет активную сессию по refresh-токену.
func (s *Storage) GetActiveSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	const op = "storage.GetActiveSessionByToken"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = $1 AND is_active`, token)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sess, nil
}

// RotateSessionToken заменяет refresh-токен активной сессии.
func (s *Storage) RotateSessionToken(ctx context.Context, sessionID, token string, at time.Time) error {
	const op = "storage.RotateSessionToken"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET token = $1, last_activity = $2 WHERE id = $3 AND is_active`,
		token, at, sessionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrSessionNotFound)
	}
	return nil
}

// TouchSession обновляет время последней активности устройства.
func (s *Storage) TouchSession(ctx context.Context, accountID, deviceID string, at time.Time) error {
	const op = "storage.TouchSession"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET last_activity = $1 WHERE user_id = $2 AND device_id = $3 AND is_active`,
		at, accountID, deviceID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
