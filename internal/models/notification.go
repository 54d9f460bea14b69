package models

import (
	"encoding/json"
	"time"
)

// Типы уведомлений жизненного цикла
const (
	NotifyTrialExpiringSoon    = "TRIAL_EXPIRING_SOON"
	NotifyTrialExpiringFinal   = "TRIAL_EXPIRING_FINAL"
	NotifyTrialExpired         = "TRIAL_EXPIRED"
	NotifySubscriptionExtended = "SUBSCRIPTION_EXTENDED"
)

// NotificationEntry запись очереди уведомлений.
// Sent меняется с false на true ровно один раз, только при доставке.
type NotificationEntry struct {
	ID           int64
	AccountID    string
	Type         string
	Title        string
	Message      string
	Payload      json.RawMessage
	ScheduledFor time.Time
	Sent         bool
	SentAt       *time.Time
	CreatedAt    time.Time
}

// NotificationEvent полезная нагрузка события notification для клиента.
type NotificationEvent struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event возвращает клиентское представление записи.
func (n NotificationEntry) Event() NotificationEvent {
	return NotificationEvent{
		ID:      n.ID,
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
		Payload: n.Payload,
	}
}
