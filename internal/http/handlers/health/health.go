package health

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/response"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
)

const checkTimeout = 2 * time.Second

// Pinger зависимость, доступность которой проверяется.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Clients сообщает число подключённых клиентов шины.
type Clients interface {
	Connected() int
}

type Handler struct {
	log     *slog.Logger
	checks  map[string]Pinger
	clients Clients
	now     func() time.Time
}

// New создаёт обработчик. Пустые зависимости в checks не передаются.
func New(log *slog.Logger, checks map[string]Pinger, clients Clients) *Handler {
	return &Handler{
		log:     log,
		checks:  checks,
		clients: clients,
		now:     time.Now,
	}
}

// ServeHTTP godoc
// @Summary Проверка состояния
// @Description Проверяет доступность базы и подключённых брокеров, возвращает число подключённых клиентов.
// @Tags Health
// @Produce  json
// @Success 200 {object} response.Response "Сервис работает"
// @Failure 503 {object} response.Response "Зависимость недоступна"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.log.Warn("dependency unavailable", slog.String("op", op), slog.String("dependency", name), sl.Err(err))
			deps[name] = "down"
			status = "degraded"
			continue
		}
		deps[name] = "up"
	}

	data := map[string]any{
		"status":           status,
		"timestamp":        h.now().UTC(),
		"dependencies":     deps,
		"connectedClients": h.clients.Connected(),
	}
	if status != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Response{Status: response.StatusError, Error: "dependency unavailable", Data: data})
		return
	}
	render.JSON(w, r, response.OKWithData(data))
}
