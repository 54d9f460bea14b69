// Package extend реализует HTTP-обработчик продления подписки аккаунта
// администратором.
//
// Продление пишет историю и аудит, восстанавливает данные из последнего
// снимка и уведомляет владельца аккаунта.
package extend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/lifecycle"
)

// Request параметры продления. Type по умолчанию manual.
type Request struct {
	Days int    `json:"days" validate:"required,gt=0,lte=3650"`
	Type string `json:"type" validate:"omitempty,max=50"`
}

// Result ответ на продление
type Result struct {
	Message string `json:"message"`
	*lifecycle.Extension
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

type Service interface {
	Extend(ctx context.Context, accountID string, daysToAdd int, extensionType string, actor models.Identity, ip string) (*lifecycle.Extension, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Продление подписки
// @Description Продлевает доступ аккаунта на указанное число дней от более поздней из текущей даты окончания и текущего момента.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID аккаунта"
// @Param request body Request true "Параметры продления"
// @Success 200 {object} response.Response "Подписка продлена"
// @Failure 400 {object} response.ErrorResponse "Некорректное число дней"
// @Failure 403 {object} response.ErrorResponse "Нужна роль администратора"
// @Failure 404 {object} response.ErrorResponse "Аккаунт не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{id}/extend [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.extend"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	actor, _ := middlewarectx.IdentityFrom(r.Context())
	accountID := chi.URLParam(r, "id")

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
	if req.Type == "" {
		req.Type = models.ExtensionManual
	}

	ext, err := h.service.Extend(r.Context(), accountID, req.Days, req.Type, actor, middlewarectx.ClientIP(r))
	switch {
	case errors.Is(err, lifecycle.ErrInvalidDays):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid number of days"))
		return
	case errors.Is(err, models.ErrAccountNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("user not found"))
		return
	case errors.Is(err, models.ErrForbidden):
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("admin access required"))
		return
	case err != nil:
		log.Error("failed to extend subscription", sl.Account(accountID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("subscription extended", sl.Account(accountID), slog.Int("days", req.Days))
	render.JSON(w, r, response.OKWithData(Result{
		Message:   fmt.Sprintf("Subscription extended by %d days", req.Days),
		Extension: ext,
	}))
}
