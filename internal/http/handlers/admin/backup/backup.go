// Package backup реализует HTTP-обработчик ручного снимка данных аккаунта.
package backup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// Result ответ с сохранённым снимком
type Result struct {
	Message    string              `json:"message"`
	SnapshotID int64               `json:"snapshotId"`
	CreatedAt  time.Time           `json:"createdAt"`
	Backup     models.BackupBundle `json:"backup"`
}

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	BackupNow(ctx context.Context, accountID string, actor models.Identity) (*models.BackupSnapshot, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Снимок данных аккаунта
// @Description Сохраняет снимок аккаунта, его транспорта и настроек.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID аккаунта"
// @Success 200 {object} response.Response "Снимок сохранён"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/backup [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.backup"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, _ := middlewarectx.IdentityFrom(r.Context())
	accountID := chi.URLParam(r, "id")

	snap, err := h.service.BackupNow(r.Context(), accountID, actor)
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, models.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("admin access required"))
		return
	case err != nil:
		log.Error("failed to back up account", sl.Account(accountID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("account backed up", sl.Account(accountID), slog.Int64("snapshot_id", snap.ID))
	render.JSON(w, r, response.OKWithData(Result{
		Message:    "User data backed up successfully",
		SnapshotID: snap.ID,
		CreatedAt:  snap.CreatedAt,
		Backup:     snap.Bundle,
	}))
}
