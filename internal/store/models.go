package store

import "time"

const (
	SyncStatePending = "PENDING"
	SyncStateSynced  = "SYNCED"
)

const (
	ReasonBatteryLow        = "BATTERY_LOW"
	ReasonServiceTerminated = "SERVICE_TERMINATED"
	ReasonPermissionDenied  = "PERMISSION_DENIED"
	ReasonAppCrashed        = "APP_CRASHED"
)

type Sample struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	BatteryPct int       `json:"battery_pct"`
	RecordedAt time.Time `json:"recorded_at"`
	SyncState  string    `json:"sync_state"`
	CreatedAt  time.Time `json:"created_at"`
}

type EmergencyCheckout struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Reason     string    `json:"reason"`
	LastLat    *float64  `json:"last_lat,omitempty"`
	LastLng    *float64  `json:"last_lng,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	BatteryPct *int      `json:"battery_pct,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionRecord is the single durable key/value record that survives
// process restarts. It is rewritten on every state-affecting operation
// and read back once on process start.
type SessionRecord struct {
	IsActive       bool      `json:"is_active"`
	EmployeeID     string    `json:"employee_id"`
	EmployeeName   string    `json:"employee_name"`
	CheckInTime    time.Time `json:"check_in_time"`
	LastSampleTime time.Time `json:"last_sample_time"`
}
