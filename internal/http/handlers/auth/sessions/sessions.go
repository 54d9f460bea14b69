// Package sessions реализует HTTP-обработчик списка активных сессий
// текущего пользователя.
package sessions

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// Session представление сессии без refresh-токена.
type Session struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"deviceId"`
	DeviceName   string    `json:"deviceName,omitempty"`
	Platform     string    `json:"devicePlatform,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	LoginTime    time.Time `json:"loginTime"`
	LastActivity time.Time `json:"lastActivity"`
}

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	ActiveSessions(ctx context.Context, accountID string) ([]models.Session, error)
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Активные сессии
// @Description Возвращает активные сессии устройств текущего пользователя.
// @Tags Auth
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response "Список сессий"
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /auth/sessions [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.sessions"

	identity, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("authentication required"))
		return
	}

	list, err := h.service.ActiveSessions(r.Context(), identity.AccountID)
	if err != nil {
		h.log.Error("failed to list sessions",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	out := make([]Session, 0, len(list))
	for _, s := range list {
		out = append(out, Session{
			ID:           s.ID,
			DeviceID:     s.Device.ID,
			DeviceName:   s.Device.Name,
			Platform:     s.Device.Platform,
			IPAddress:    s.IPAddress,
			LoginTime:    s.LoginTime,
			LastActivity: s.LastActivity,
		})
	}
	render.JSON(w, r, response.OKWithData(map[string]any{"sessions": out}))
}
