// Package forcelogout реализует HTTP-обработчик принудительного завершения
// сессии устройства администратором.
package forcelogout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type Request struct {
	UserID   string `json:"userId" validate:"required"`
	DeviceID string `json:"deviceId" validate:"required,max=255"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

type Service interface {
	ForceEnd(ctx context.Context, accountID, deviceID string, actor models.Identity, ip string) error
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Завершение сессии устройства
// @Description Завершает активную сессию устройства и отправляет ему событие force_logout.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Аккаунт и устройство"
// @Success 200 {object} response.Response "Сессия завершена"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/force-logout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.forcelogout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, _ := middlewarectx.IdentityFrom(r.Context())

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	err := h.service.ForceEnd(r.Context(), req.UserID, req.DeviceID, actor, middlewarectx.ClientIP(r))
	switch {
	case errors.Is(err, models.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("admin access required"))
		return
	case err != nil:
		log.Error("failed to force logout", sl.Account(req.UserID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]string{
		"message": "Device logged out successfully",
	}))
}
