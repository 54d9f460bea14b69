package models

import "errors"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSnapshotNotFound = errors.New("no backup snapshot found")
	ErrAccountExists    = errors.New("account already exists")
	ErrForbidden        = errors.New("administrator role required")
)
