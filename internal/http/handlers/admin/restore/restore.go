// Package restore реализует HTTP-обработчик восстановления данных аккаунта
// из последнего снимка.
package restore

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Restore(ctx context.Context, accountID string, actor models.Identity) (models.RestoreResult, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Восстановление данных
// @Description Восстанавливает транспорт и настройки аккаунта из последнего снимка. Существующие записи не перезаписываются.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID аккаунта"
// @Success 200 {object} response.Response "Итог восстановления"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/restore [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.restore"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, _ := middlewarectx.IdentityFrom(r.Context())
	accountID := chi.URLParam(r, "id")

	res, err := h.service.Restore(r.Context(), accountID, actor)
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
		log.Error("failed to restore account data", sl.Account(accountID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	// отсутствие снимка не ошибка запроса: Success=false с пояснением
	render.JSON(w, r, response.OKWithData(res))
}
