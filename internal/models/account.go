// Package models содержит доменные структуры координатора: аккаунты,
// сессии устройств, уведомления, снимки данных и записи аудита.
package models

import "time"

// Role роль аккаунта
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleGuest    Role = "guest"
)

// Account учётная запись арендатора или администратора.
// Аккаунты никогда не удаляются, только деактивируются.
type Account struct {
	ID                  string
	Username            string
	PasswordHash        string
	FullName            string
	Role                Role
	IsActive            bool
	IsPaid              bool
	IsGuest             bool
	TrialStartDate      time.Time
	TrialEndDate        *time.Time // nil, если пробного периода нет
	SubscriptionEndDate *time.Time // nil, если подписка не оплачивалась
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsAdmin сообщает, является ли аккаунт администратором.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// EndDate возвращает действующую дату окончания доступа: более позднюю
// из даты конца пробного периода и даты конца подписки.
func (a *Account) EndDate() *time.Time {
	switch {
	case a.TrialEndDate == nil:
		return a.SubscriptionEndDate
	case a.SubscriptionEndDate == nil:
		return a.TrialEndDate
	case a.SubscriptionEndDate.After(*a.TrialEndDate):
		return a.SubscriptionEndDate
	default:
		return a.TrialEndDate
	}
}

// Identity проверенная личность владельца токена.
type Identity struct {
	AccountID string
	Username  string
	Role      Role
}

// IsAdmin сообщает, принадлежит ли личность администратору.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
