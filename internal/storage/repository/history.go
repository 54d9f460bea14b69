package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// ListHistory возвращает историю продлений аккаунта, новые записи первыми.
func (s *Storage) ListHistory(ctx context.Context, accountID string) ([]models.SubscriptionHistoryEntry, error) {
	const op = "storage.ListHistory"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT h.id, h.user_id, h.extended_by_admin_id, COALESCE(a.username, ''), h.days_added,
		        h.extension_type, h.new_end_date, h.created_at
		 FROM subscription_history h
		 LEFT JOIN users a ON a.id = h.extended_by_admin_id
		 WHERE h.user_id = $1
		 ORDER BY h.created_at DESC, h.id DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := []models.SubscriptionHistoryEntry{}
	for rows.Next() {
		var h models.SubscriptionHistoryEntry
		if err = rows.Scan(&h.ID, &h.AccountID, &h.ExtendedByAdminID, &h.AdminUsername,
			&h.DaysAdded, &h.ExtensionType, &h.NewEndDate, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
