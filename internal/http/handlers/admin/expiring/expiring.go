// Package expiring реализует HTTP-обработчик списка аккаунтов,
// доступ которых скоро заканчивается.
package expiring

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/lifecycle"
)

const defaultWindowDays = 3

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Expiring(ctx context.Context, windowDays int) ([]models.ExpiringAccount, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Скоро истекающие аккаунты
// @Description Возвращает активные аккаунты, доступ которых заканчивается в ближайшие days календарных дней.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param days query int false "Окно в днях, по умолчанию 3"
// @Success 200 {object} response.Response "Список аккаунтов"
// @Failure 400 {object} response.ErrorResponse "Некорректное число дней"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/subscriptions/expiring [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.expiring"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	window := defaultWindowDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid number of days"))
			return
		}
		window = n
	}

	accounts, err := h.service.Expiring(r.Context(), window)
	switch {
	case errors.Is(err, lifecycle.ErrInvalidDays):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid number of days"))
		return
	case err != nil:
		log.Error("failed to list expiring accounts", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"users": accounts,
	}))
}
