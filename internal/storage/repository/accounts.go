package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

const accountColumns = `id, username, password_hash, full_name, role, is_active, is_paid, is_guest,
	trial_start_date, trial_end_date, subscription_end_date, created_at, updated_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	a := &models.Account{}
	var role string
	var trialEnd, subEnd sql.NullTime
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &role,
		&a.IsActive, &a.IsPaid, &a.IsGuest, &a.TrialStartDate, &trialEnd, &subEnd,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Role = models.Role(role)
	if trialEnd.Valid {
		a.TrialEndDate = &trialEnd.Time
	}
	if subEnd.Valid {
		a.SubscriptionEndDate = &subEnd.Time
	}
	return a, nil
}

func scanAccounts(rows *sql.Rows) ([]*models.Account, error) {
	var result []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// CreateAccount сохраняет новый аккаунт и возвращает его ID.
func (s *Storage) CreateAccount(ctx context.Context, a models.Account) (string, error) {
	const op = "storage.CreateAccount"
	if err := ctxErr(ctx, op); err != nil {
		return "", err
	}

	query := `INSERT INTO users (username, password_hash, full_name, role, is_active, is_paid,
			      is_guest, trial_start_date, trial_end_date, subscription_end_date)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  RETURNING id`
	var id string
	err := s.DB.QueryRowContext(ctx, query,
		a.Username, a.PasswordHash, a.FullName, string(a.Role), a.IsActive, a.IsPaid,
		a.IsGuest, a.TrialStartDate, a.TrialEndDate, a.SubscriptionEndDate).Scan(&id)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("%s: %w", op, models.ErrAccountExists)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetAccount возвращает аккаунт по ID.
func (s *Storage) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	const op = "storage.GetAccount"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// GetAccountByUsername возвращает аккаунт по имени пользователя.
func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	const op = "storage.GetAccountByUsername"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE username = $1`, username)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

// DeactivateAccount снимает флаг активности аккаунта.
func (s *Storage) DeactivateAccount(ctx context.Context, id string) error {
	const op = "storage.DeactivateAccount"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrAccountNotFound)
	}
	return nil
}

// FindAccountsEndingBetween возвращает активные аккаунты (кроме администраторов),
// у которых действующая дата окончания попадает в [from, to).
func (s *Storage) FindAccountsEndingBetween(ctx context.Context, from, to time.Time) ([]*models.Account, error) {
	const op = "storage.FindAccountsEndingBetween"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + `
			  FROM users
			  WHERE is_active AND role <> 'admin'
			    AND GREATEST(trial_end_date, subscription_end_date) >= $1
			    AND GREATEST(trial_end_date, subscription_end_date) < $2
			  ORDER BY GREATEST(trial_end_date, subscription_end_date)`
	rows, err := s.DB.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result, err := scanAccounts(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindAccountsEndedBefore возвращает активные аккаунты (кроме администраторов),
// чья действующая дата окончания раньше before.
func (s *Storage) FindAccountsEndedBefore(ctx context.Context, before time.Time) ([]*models.Account, error) {
	const op = "storage.FindAccountsEndedBefore"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + accountColumns + `
			  FROM users
			  WHERE is_active AND role <> 'admin'
			    AND GREATEST(trial_end_date, subscription_end_date) <= $1`
	rows, err := s.DB.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result, err := scanAccounts(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ApplyExtension в одной транзакции продлевает подписку аккаунта до newEnd,
// помечает его оплаченным и активным и добавляет запись в историю продлений.
func (s *Storage) ApplyExtension(ctx context.Context, entry models.SubscriptionHistoryEntry) (*models.SubscriptionHistoryEntry, error) {
	const op = "storage.ApplyExtension"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users
			 SET subscription_end_date = $1, is_paid = TRUE, is_active = TRUE, updated_at = NOW()
			 WHERE id = $2`, entry.NewEndDate, entry.AccountID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrAccountNotFound
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO subscription_history
			     (user_id, extended_by_admin_id, days_added, extension_type, new_end_date)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING id, created_at`,
			entry.AccountID, entry.ExtendedByAdminID, entry.DaysAdded, entry.ExtensionType, entry.NewEndDate,
		).Scan(&entry.ID, &entry.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &entry, nil
}
