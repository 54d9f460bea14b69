// Package websocket обслуживает постоянные подключения клиентов:
// проверяет токен до апгрейда, подписывает соединение на шину событий
// и разбирает входящие сообщения.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/metrics"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

var ErrHubClosed = errors.New("hub is closed")

// Verifier проверяет access-токен подключения.
type Verifier interface {
	Verify(ctx context.Context, token string) (models.Identity, error)
}

// Sessions операции реестра сессий, доступные из соединения.
type Sessions interface {
	StartSession(ctx context.Context, accountID string, device models.Device, credentialRef, ip string) (*models.Session, int, error)
	ForceEnd(ctx context.Context, accountID, deviceID string, actor models.Identity, ip string) error
	Touch(ctx context.Context, accountID, deviceID string) error
}

// Stats источник операционного среза.
type Stats interface {
	Snapshot(ctx context.Context) (models.Stats, error)
	Invalidate(ctx context.Context)
}

// Hub держит подключённых клиентов.
type Hub struct {
	log      *slog.Logger
	bus      *eventbus.Bus
	verifier Verifier
	sessions Sessions
	stats    Stats
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

func NewHub(log *slog.Logger, bus *eventbus.Bus, verifier Verifier, sessions Sessions, stats Stats, m *metrics.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		log:      log,
		bus:      bus,
		verifier: verifier,
		sessions: sessions,
		stats:    stats,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin не проверяется: доступ определяет токен.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
}

// HandleWebSocket проверяет токен и переводит запрос на websocket.
// Запрос без действующего токена отклоняется с 401 до апгрейда.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	const op = "websocket.HandleWebSocket"
	log := h.log.With(slog.String("op", op))

	token := tokenFromRequest(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		log.Debug("connection rejected", sl.Err(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", sl.Err(err))
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	c := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		id:       uuid.NewString(),
		identity: identity,
		ip:       clientIP(r),
		ctx:      ctx,
		cancel:   cancel,
		state:    stateAwaitingDevice,
	}
	if !h.register(c) {
		cancel()
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount возвращает число открытых соединений.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown закрывает все соединения и ждёт завершения их обработчиков
// либо отмены ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range clients {
		_ = c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.bus.Subscribe(eventbus.AccountScope(c.identity.AccountID), c)
	if c.identity.IsAdmin() {
		h.bus.Subscribe(eventbus.AdminScope(), c)
	}
	h.metrics.ClientConnected()
	h.log.Info("client connected",
		slog.String("client", c.id),
		sl.Account(c.identity.AccountID),
		slog.String("role", string(c.identity.Role)))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	h.bus.Unsubscribe(c)
	c.close()
	h.metrics.ClientDisconnected()
	h.wg.Done()
	h.log.Info("client disconnected", slog.String("client", c.id), sl.Account(c.identity.AccountID))
}

func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
