// Package forcelogoutall реализует HTTP-обработчик завершения всех
// активных сессий, кроме сессий самого администратора.
package forcelogoutall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// Result ответ с числом завершённых сессий
type Result struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	ForceEndAll(ctx context.Context, actor models.Identity, ip string) (int, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Завершение всех сессий
// @Description Завершает все активные сессии всех аккаунтов, кроме сессий вызывающего администратора.
// @Tags Admin
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Сессии завершены"
// @Failure 403 {object} response.ErrorResponse "Нужна роль администратора"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/force-logout-all [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.forcelogoutall"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, _ := middlewarectx.IdentityFrom(r.Context())

	n, err := h.service.ForceEndAll(r.Context(), actor, middlewarectx.ClientIP(r))
	switch {
	case errors.Is(err, models.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("admin access required"))
		return
	case err != nil:
		log.Error("failed to force logout all sessions", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(Result{
		Message: fmt.Sprintf("%d sessions logged out successfully", n),
		Count:   n,
	}))
}
