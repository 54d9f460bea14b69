package models

import "time"

// Device описание клиентского устройства
type Device struct {
	ID       string `json:"deviceId" validate:"required,max=255"`
	Name     string `json:"deviceName,omitempty" validate:"max=255"`
	Platform string `json:"platform,omitempty" validate:"max=100"`
}

// Session сессия устройства. На один аккаунт активна не более чем одна.
type Session struct {
	ID            string
	AccountID     string
	Device        Device
	CredentialRef string // текущий refresh-токен устройства
	IPAddress     string
	IsActive      bool
	LoginTime     time.Time
	LogoutTime    *time.Time
	LastActivity  time.Time
}
