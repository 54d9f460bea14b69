package models

import (
	"encoding/json"
	"time"
)

// ExtensionManual тип продления по умолчанию
const ExtensionManual = "manual"

// SubscriptionHistoryEntry запись о продлении подписки
type SubscriptionHistoryEntry struct {
	ID                int64     `json:"id"`
	AccountID         string    `json:"userId"`
	ExtendedByAdminID string    `json:"extendedByAdminId"`
	AdminUsername     string    `json:"adminUsername,omitempty"`
	DaysAdded         int       `json:"daysAdded"`
	ExtensionType     string    `json:"extensionType"`
	NewEndDate        time.Time `json:"newEndDate"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Действия аудита
const (
	AuditForceLogout        = "FORCE_LOGOUT"
	AuditForceLogoutAll     = "FORCE_LOGOUT_ALL"
	AuditExtendSubscription = "EXTEND_SUBSCRIPTION"
	AuditRestoreUserData    = "RESTORE_USER_DATA"
	AuditBackupUserData     = "BACKUP_USER_DATA"
)

// AuditEntry запись журнала аудита. ActorID nil означает систему.
type AuditEntry struct {
	ActorID    *string
	Action     string
	EntityType string
	EntityID   string
	Details    json.RawMessage
	IPAddress  string
	CreatedAt  time.Time
}

// ExpiringAccount аккаунт с приближающимся окончанием доступа
type ExpiringAccount struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	FullName      string     `json:"fullName,omitempty"`
	IsGuest       bool       `json:"isGuest"`
	IsPaid        bool       `json:"isPaid"`
	EndsAt        *time.Time `json:"endsAt"`
	DaysRemaining int        `json:"daysRemaining"`
}
