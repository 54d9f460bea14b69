package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/eventbus"
	"github.com/magabrotheeeer/parkease-coordinator/internal/lib/sl"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// Входящие события
const (
	inAuthenticateDevice = "authenticate_device"
	inVehicleUpdate      = "vehicle_update"
	inRequestStats       = "request_stats"
	inAdminForceLogout   = "admin_force_logout"
	inPing               = "ping"
)

const handlerTimeout = 10 * time.Second

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type authenticatedPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type forceLogoutRequest struct {
	TargetUserID   string `json:"targetUserId"`
	TargetDeviceID string `json:"targetDeviceId"`
}

type pongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

func (c *Client) dispatch(msg inbound) {
	ctx, cancel := context.WithTimeout(c.ctx, handlerTimeout)
	defer cancel()

	switch msg.Event {
	case inAuthenticateDevice:
		c.authenticateDevice(ctx, msg.Data)
	case inVehicleUpdate:
		c.vehicleUpdate(ctx, msg.Data)
	case inRequestStats:
		c.requestStats(ctx)
	case inAdminForceLogout:
		c.adminForceLogout(ctx, msg.Data)
	case inPing:
		c.ping(ctx)
	default:
		c.reply(eventbus.EventError, errorPayload{Message: "Unknown event"})
	}
}

func (c *Client) authenticateDevice(ctx context.Context, data json.RawMessage) {
	var device models.Device
	if err := json.Unmarshal(data, &device); err != nil || device.ID == "" {
		c.reply(eventbus.EventAuthenticated, authenticatedPayload{Error: "deviceId is required"})
		return
	}

	_, evicted, err := c.hub.sessions.StartSession(ctx, c.identity.AccountID, device, "", c.ip)
	if err != nil {
		c.hub.log.Error("device authentication failed",
			slog.String("client", c.id), sl.Account(c.identity.AccountID), sl.Err(err))
		c.reply(eventbus.EventAuthenticated, authenticatedPayload{Error: "Authentication failed"})
		return
	}

	c.markReady(device.ID)
	c.hub.log.Debug("device authenticated",
		slog.String("client", c.id), slog.String("device_id", device.ID), slog.Int("evicted", evicted))
	c.reply(eventbus.EventAuthenticated, authenticatedPayload{Success: true})
}

func (c *Client) vehicleUpdate(ctx context.Context, data json.RawMessage) {
	if _, ok := c.ready(); !ok {
		c.reply(eventbus.EventError, errorPayload{Message: "Device not authenticated"})
		return
	}

	c.publish(ctx, eventbus.AccountScope(c.identity.AccountID), eventbus.EventSyncVehicle, data)
	c.publish(ctx, eventbus.AdminScope(), eventbus.EventDashboardUpdate, eventbus.DashboardUpdate{
		Domain:    "vehicle",
		Action:    "update",
		AccountID: c.identity.AccountID,
		Data:      data,
	})
	c.hub.stats.Invalidate(ctx)
}

func (c *Client) requestStats(ctx context.Context) {
	if !c.identity.IsAdmin() {
		c.reply(eventbus.EventError, errorPayload{Message: "Unauthorized"})
		return
	}
	st, err := c.hub.stats.Snapshot(ctx)
	if err != nil {
		c.hub.log.Error("failed to fetch stats", slog.String("client", c.id), sl.Err(err))
		c.reply(eventbus.EventError, errorPayload{Message: "Failed to fetch stats"})
		return
	}
	c.reply(eventbus.EventStatsUpdate, st)
}

func (c *Client) adminForceLogout(ctx context.Context, data json.RawMessage) {
	if !c.identity.IsAdmin() {
		c.reply(eventbus.EventError, errorPayload{Message: "Unauthorized"})
		return
	}
	var req forceLogoutRequest
	if err := json.Unmarshal(data, &req); err != nil || req.TargetUserID == "" || req.TargetDeviceID == "" {
		c.reply(eventbus.EventError, errorPayload{Message: "targetUserId and targetDeviceId are required"})
		return
	}

	err := c.hub.sessions.ForceEnd(ctx, req.TargetUserID, req.TargetDeviceID, c.identity, c.ip)
	switch {
	case err != nil:
		c.hub.log.Error("force logout failed", slog.String("client", c.id), sl.Err(err))
		c.reply(eventbus.EventError, errorPayload{Message: "Force logout failed"})
	default:
		c.reply(eventbus.EventForceLogoutSuccess, req)
	}
}

func (c *Client) ping(ctx context.Context) {
	if deviceID, ok := c.ready(); ok {
		if err := c.hub.sessions.Touch(ctx, c.identity.AccountID, deviceID); err != nil {
			c.hub.log.Warn("failed to touch session", sl.Account(c.identity.AccountID), sl.Err(err))
		}
	}
	c.reply(eventbus.EventPong, pongPayload{Timestamp: time.Now().Unix()})
}

func (c *Client) publish(ctx context.Context, scope eventbus.Scope, event string, payload any) {
	err := c.hub.bus.Publish(ctx, scope, event, payload)
	if err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
		c.hub.log.Error("failed to publish event",
			slog.String("event", event), slog.String("scope", scope.String()), sl.Err(err))
	}
}
