package eventbus

// Имена событий, которые получают клиенты.
const (
	EventForceLogout        = "force_logout"
	EventNotification       = "notification"
	EventDashboardUpdate    = "dashboard_update"
	EventStatsUpdate        = "stats_update"
	EventAuthenticated      = "authenticated"
	EventSyncVehicle        = "sync_vehicle"
	EventForceLogoutSuccess = "force_logout_success"
	EventPong               = "pong"
	EventError              = "error"
)

// Причины принудительного выхода
const (
	ReasonNewDevice = "new_device_login"
	ReasonAdmin     = "admin_force_logout"
	ReasonAdminAll  = "admin_force_logout_all"
)

// ForceLogout полезная нагрузка force_logout.
type ForceLogout struct {
	Reason   string `json:"reason"`
	Message  string `json:"message"`
	DeviceID string `json:"deviceId"`
}

// DashboardUpdate полезная нагрузка dashboard_update.
type DashboardUpdate struct {
	Domain    string `json:"domain"`
	Action    string `json:"action,omitempty"`
	AccountID string `json:"userId,omitempty"`
	Data      any    `json:"data,omitempty"`
}
