package interfaces

import (
	"context"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
)

type PlantRepository interface {
	CreatePlant(ctx context.Context, plant *hardware_models.Plant) error
	GetPlant(ctx context.Context, id int64) (*hardware_models.Plant, error)
	ListPlantsByUser(ctx context.Context, userID string) ([]hardware_models.Plant, error)
	UpdatePlant(ctx context.Context, plant *hardware_models.Plant) error
	// DeletePlant also removes the plant's sensors and their readings
	DeletePlant(ctx context.Context, id int64) error
}

type SensorRepository interface {
	CreateSensor(ctx context.Context, sensor *hardware_models.Sensor) error
	GetSensor(ctx context.Context, id int64) (*hardware_models.Sensor, error)
	ListSensorsByPlant(ctx context.Context, plantID int64) ([]hardware_models.Sensor, error)
	UpdateSensor(ctx context.Context, sensor *hardware_models.Sensor) error
	DeleteSensor(ctx context.Context, id int64) error
}

type SensorReadingRepository interface {
	CreateSensorReading(ctx context.Context, reading *hardware_models.SensorReading) error
	ListReadingsBySensor(ctx context.Context, sensorID int64) ([]hardware_models.SensorReading, error)
}
