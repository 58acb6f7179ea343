package tracking

import (
	"fmt"
	"time"
)

const (
	StateInactive     = "INACTIVE"
	StateActivating   = "ACTIVATING"
	StateActive       = "ACTIVE"
	StateDeactivating = "DEACTIVATING"
	StateRestoring    = "RESTORING"
)

const ReasonUserCheckout = "USER_CHECKOUT"

// Position is one fix delivered by a positioning provider.
type Position struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StatusSnapshot is the externally visible state of a shift. The controller
// publishes it on every transition and on every status tick; rendering is a
// presentation-layer concern.
type StatusSnapshot struct {
	IsActive        bool      `json:"is_active"`
	State           string    `json:"state"`
	EmployeeID      string    `json:"employee_id,omitempty"`
	EmployeeName    string    `json:"employee_name,omitempty"`
	CheckInTime     time.Time `json:"check_in_time,omitempty"`
	DurationSec     int64     `json:"duration_sec"`
	SinceLastFixSec int64     `json:"since_last_fix_sec"`
	BatteryPct      int       `json:"battery_pct"`
	DistanceM       float64   `json:"distance_m"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
}

func formatShort(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
