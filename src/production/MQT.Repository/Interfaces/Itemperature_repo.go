package interfaces

import (
	"context"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
)

// TemperatureRepository stores readings. Every list is returned in insertion order.
type TemperatureRepository interface {
	// CreateTemperature inserts one row in its own transaction and fills ID
	CreateTemperature(ctx context.Context, t *hardware_models.Temperature) error

	ListByDevice(ctx context.Context, deviceID int64) ([]hardware_models.Temperature, error)
	ListByOwner(ctx context.Context, userID string) ([]hardware_models.Temperature, error)
	ListAll(ctx context.Context) ([]hardware_models.Temperature, error)

	// GetLatest returns the newest reading by timestamp. Empty userID means every owner,
	// zero deviceID means every device.
	GetLatest(ctx context.Context, userID string, deviceID int64) (*hardware_models.Temperature, error)
}
