package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// InsertNotification сохраняет запись очереди и возвращает её ID.
func (s *Storage) InsertNotification(ctx context.Context, n models.NotificationEntry) (int64, error) {
	const op = "storage.InsertNotification"
	if err := ctxErr(ctx, op); err != nil {
		return 0, err
	}

	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO notification_queue (user_id, type, title, message, data, scheduled_for)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		n.AccountID, n.Type, n.Title, n.Message, jsonArg(n.Payload), n.ScheduledFor).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// PendingNotifications возвращает до limit неотправленных записей,
// срок которых наступил, в порядке возрастания scheduled_for.
func (s *Storage) PendingNotifications(ctx context.Context, now time.Time, limit int) ([]models.NotificationEntry, error) {
	const op = "storage.PendingNotifications"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, type, title, message, data, scheduled_for, sent, sent_at, created_at
		 FROM notification_queue
		 WHERE NOT sent AND scheduled_for <= $1
		 ORDER BY scheduled_for ASC, id ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.NotificationEntry
	for rows.Next() {
		var n models.NotificationEntry
		var payload []byte
		var sentAt sql.NullTime
		if err = rows.Scan(&n.ID, &n.AccountID, &n.Type, &n.Title, &n.Message, &payload,
			&n.ScheduledFor, &n.Sent, &sentAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		n.Payload = payload
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}
		result = append(result, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkNotificationSent помечает запись доставленной. Повторная пометка
// не меняет sent_at.
func (s *Storage) MarkNotificationSent(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.MarkNotificationSent"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE notification_queue SET sent = TRUE, sent_at = $1 WHERE id = $2 AND NOT sent`,
		at, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NotificationEnqueuedSince сообщает, ставилось ли уведомление данного типа
// для аккаунта начиная с since.
func (s *Storage) NotificationEnqueuedSince(ctx context.Context, accountID, typ string, since time.Time) (bool, error) {
	const op = "storage.NotificationEnqueuedSince"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM notification_queue
		     WHERE user_id = $1 AND type = $2 AND created_at >= $3
		 )`, accountID, typ, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
