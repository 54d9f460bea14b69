// Package login реализует HTTP-обработчик входа по имени и паролю.
//
// Вход открывает сессию устройства; остальные устройства аккаунта
// получают force_logout.
package login

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
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/auth"
)

// Request входные данные для входа устройства.
type Request struct {
	Username       string `json:"username" validate:"required,min=3,max=50"`
	Password       string `json:"password" validate:"required,min=6"`
	DeviceID       string `json:"deviceId" validate:"required,max=255"`
	DeviceName     string `json:"deviceName" validate:"max=255"`
	DevicePlatform string `json:"devicePlatform" validate:"max=100"`
}

// Handler обрабатывает HTTP-запросы для авторизации.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает интерфейс бизнес-логики входа.
type Service interface {
	Login(ctx context.Context, username, password string, device models.Device, ip string) (*auth.LoginResult, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Авторизация пользователя
// @Description Проверяет пароль, открывает сессию устройства и вытесняет остальные устройства аккаунта.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные и устройство"
// @Success 200 {object} response.Response "Успешная авторизация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 403 {object} response.ErrorResponse "Пробный период закончился"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

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
		log.Info("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	device := models.Device{ID: req.DeviceID, Name: req.DeviceName, Platform: req.DevicePlatform}
	res, err := h.service.Login(r.Context(), req.Username, req.Password, device, middlewarectx.ClientIP(r))
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		log.Info("login rejected", slog.String("username", req.Username))
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid credentials"))
		return
	case errors.Is(err, auth.ErrTrialExpired):
		log.Info("login refused, access expired", slog.String("username", req.Username))
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.Error("your trial period has ended, please subscribe to continue"))
		return
	case err != nil:
		log.Error("login failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	message := "Login successful"
	if res.LoggedOutOthers {
		message = "Logged in from new device. Other devices have been logged out."
	}
	log.Info("login success", sl.Account(res.Account.ID), slog.Bool("evicted_others", res.LoggedOutOthers))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"user":         models.SnapshotOf(res.Account),
		"state":        res.State,
		"accessToken":  res.Access,
		"refreshToken": res.Refresh,
		"message":      message,
	}))
}
