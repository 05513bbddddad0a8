package interfaces

import (
	"context"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
)

type DeviceRepository interface {
	// CreateDevice fills ID and CreatedAt. A duplicate name for the same owner yields ErrDuplicate.
	CreateDevice(ctx context.Context, device *hardware_models.Device) error

	// GetDeviceByID is a primary-key lookup
	GetDeviceByID(ctx context.Context, id int64) (*hardware_models.Device, error)
	// FindDeviceByName returns the first matching device by insertion order
	FindDeviceByName(ctx context.Context, name string) (*hardware_models.Device, error)
	ListDevicesByOwner(ctx context.Context, userID string) ([]hardware_models.Device, error)
	ListDevices(ctx context.Context) ([]hardware_models.Device, error)

	DeleteDevice(ctx context.Context, id int64) error
}
