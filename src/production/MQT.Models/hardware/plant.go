package hardware_models

import "time"

// Plant groups sensors under one owner
type Plant struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Location  *string   `json:"location,omitempty" db:"location"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Sensor struct {
	ID      int64  `json:"id" db:"id"`
	Type    string `json:"type" db:"type"` // temperature, humidity, ...
	Unit    string `json:"unit" db:"unit"`
	PlantID int64  `json:"plant_id" db:"plant_id"`
}

type SensorReading struct {
	ID        int64     `json:"id" db:"id"`
	SensorID  int64     `json:"sensor_id" db:"sensor_id"`
	Value     float64   `json:"value" db:"value"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
