package hardware_models

import "time"

// Device is a telemetry source owned by a user. Name is unique per owner.
type Device struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Temperature is one reading attributed to a device. Rows are immutable once written.
type Temperature struct {
	ID        int64     `json:"id" db:"id"`
	DeviceID  int64     `json:"device_id" db:"device_id"`
	Value     float64   `json:"temperature" db:"value"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
