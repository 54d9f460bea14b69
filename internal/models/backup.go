package models

import (
	"encoding/json"
	"time"
)

// Причины создания снимка
const (
	BackupReasonWarning    = "auto_expiration_backup"
	BackupReasonExpiration = "final_backup_before_expiration"
	BackupReasonManual     = "manual"
)

// Vehicle запись о транспортном средстве оператора
type Vehicle struct {
	ID           string     `json:"id"`
	LicensePlate string     `json:"license_plate"`
	VehicleType  string     `json:"vehicle_type"`
	OperatorID   string     `json:"operator_id"`
	EntryTime    time.Time  `json:"entry_time"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	TotalAmount  float64    `json:"total_amount"`
	IsPaid       bool       `json:"is_paid"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Preference пользовательская настройка, уникальна по (аккаунт, ключ)
type Preference struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// AccountSnapshot данные аккаунта в снимке, без хэша пароля.
type AccountSnapshot struct {
	ID                  string     `json:"id"`
	Username            string     `json:"username"`
	FullName            string     `json:"full_name,omitempty"`
	Role                Role       `json:"role"`
	IsActive            bool       `json:"is_active"`
	IsPaid              bool       `json:"is_paid"`
	IsGuest             bool       `json:"is_guest"`
	TrialEndDate        *time.Time `json:"trial_end_date,omitempty"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date,omitempty"`
}

// BackupBundle содержимое снимка данных аккаунта
type BackupBundle struct {
	Account     AccountSnapshot `json:"user"`
	Vehicles    []Vehicle       `json:"vehicles"`
	Preferences []Preference    `json:"settings"`
	BackupDate  time.Time       `json:"backupDate"`
	Reason      string          `json:"backupType"`
}

// BackupSnapshot сохранённый снимок. Записи только добавляются.
type BackupSnapshot struct {
	ID               int64
	AccountID        string
	Bundle           BackupBundle
	CreatedAt        time.Time
	RestoredAt       *time.Time
	CreatedByAdminID *string // nil означает систему
}

// RestoreCounts количество записей по видам
type RestoreCounts struct {
	Vehicles    int `json:"vehicles"`
	Preferences int `json:"settings"`
}

// RestoreResult итог восстановления из снимка
type RestoreResult struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	SnapshotID int64         `json:"snapshotId,omitempty"`
	BackupDate *time.Time    `json:"backupDate,omitempty"`
	Restored   RestoreCounts `json:"restoredItems"`
	Failed     RestoreCounts `json:"failedItems"`
}

// SnapshotOf строит представление аккаунта для снимка.
func SnapshotOf(a *Account) AccountSnapshot {
	return AccountSnapshot{
		ID:                  a.ID,
		Username:            a.Username,
		FullName:            a.FullName,
		Role:                a.Role,
		IsActive:            a.IsActive,
		IsPaid:              a.IsPaid,
		IsGuest:             a.IsGuest,
		TrialEndDate:        a.TrialEndDate,
		SubscriptionEndDate: a.SubscriptionEndDate,
	}
}
