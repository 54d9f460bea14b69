package models

import "time"

// Stats операционный срез для администраторов
type Stats struct {
	TotalVehicles    int       `json:"totalVehicles"`
	ActiveVehicles   int       `json:"activeVehicles"`
	TodayRevenue     float64   `json:"todayRevenue"`
	ActiveUsers      int       `json:"activeUsers"`
	TodayEntries     int       `json:"todayEntries"`
	ConnectedClients int       `json:"connectedClients"`
	Timestamp        time.Time `json:"timestamp"`
}
