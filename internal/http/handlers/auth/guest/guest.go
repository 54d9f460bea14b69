// Package guest реализует HTTP-обработчик гостевой регистрации.
package guest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/auth"
)

// Request устройство, с которого создаётся гостевой аккаунт.
type Request struct {
	DeviceID       string `json:"deviceId" validate:"required,max=255"`
	DeviceName     string `json:"deviceName" validate:"max=255"`
	DevicePlatform string `json:"devicePlatform" validate:"max=100"`
}

type Handler struct {
	log       *slog.Logger
	service   Service
	validate  *validator.Validate
	trialDays int
}

type Service interface {
	GuestSignup(ctx context.Context, device models.Device, ip string) (*auth.GuestResult, error)
}

func New(log *slog.Logger, service Service, trialDays int) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		validate:  validator.New(),
		trialDays: trialDays,
	}
}

// ServeHTTP godoc
// @Summary Гостевая регистрация
// @Description Создаёт гостевой аккаунт оператора с коротким пробным периодом и возвращает сгенерированные учётные данные.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Устройство"
// @Success 200 {object} response.Response "Аккаунт создан"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/guest [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.guest"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	device := models.Device{ID: req.DeviceID, Name: req.DeviceName, Platform: req.DevicePlatform}
	res, err := h.service.GuestSignup(r.Context(), device, middlewarectx.ClientIP(r))
	if err != nil {
		log.Error("guest signup failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"user":         models.SnapshotOf(res.Account),
		"state":        res.State,
		"accessToken":  res.Access,
		"refreshToken": res.Refresh,
		"credentials": map[string]string{
			"username": res.Username,
			"password": res.Password,
		},
		"message": fmt.Sprintf("Guest account created with %d-day trial", h.trialDays),
	}))
}
