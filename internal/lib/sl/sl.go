// Package sl содержит вспомогательные атрибуты для логгера slog.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и текстом ошибки.
// Для nil возвращается пустое значение, чтобы логирование не паниковало.
//
// Пример:
//
//	log.Error("failed to drain queue", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{Key: "error", Value: slog.StringValue("")}
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Account возвращает атрибут с идентификатором аккаунта.
func Account(id string) slog.Attr {
	return slog.String("account_id", id)
}
