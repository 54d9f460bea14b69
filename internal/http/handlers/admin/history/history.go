// Package history реализует HTTP-обработчик истории продлений аккаунта.
package history

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	History(ctx context.Context, accountID string) ([]models.SubscriptionHistoryEntry, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary История продлений
// @Description Возвращает записи о продлениях подписки аккаунта, последние первыми.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID аккаунта"
// @Success 200 {object} response.Response "История продлений"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/subscription-history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.history"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	accountID := chi.URLParam(r, "id")

	entries, err := h.service.History(r.Context(), accountID)
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case err != nil:
		log.Error("failed to load subscription history", sl.Account(accountID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}
	if entries == nil {
		entries = []models.SubscriptionHistoryEntry{}
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"history": entries,
	}))
}
