// Package resolver maps identifiers carried by broker messages to stored devices.
// It only reads: an unknown identifier is reported, never created.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
)

// ErrNotFound is returned when no device matches the identifier
var ErrNotFound = errors.New("device not found")

// DeviceLookup is the read side of the device repository
type DeviceLookup interface {
	GetDeviceByID(ctx context.Context, id int64) (*hardware_models.Device, error)
	FindDeviceByName(ctx context.Context, name string) (*hardware_models.Device, error)
}

type Resolver struct {
	lookup DeviceLookup
}

func New(lookup DeviceLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// ResolveByID is a primary-key lookup
func (r *Resolver) ResolveByID(ctx context.Context, id int64) (*hardware_models.Device, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}

	device, err := r.lookup.GetDeviceByID(ctx, id)
	return checkLookup(device, err, fmt.Sprintf("id %d", id))
}

// ResolveByName returns the first device with that name in insertion order
func (r *Resolver) ResolveByName(ctx context.Context, name string) (*hardware_models.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}

	device, err := r.lookup.FindDeviceByName(ctx, name)
	return checkLookup(device, err, fmt.Sprintf("name %q", name))
}

func checkLookup(device *hardware_models.Device, err error, what string) (*hardware_models.Device, error) {
	if errors.Is(err, sql.ErrNoRows) || (err == nil && device == nil) {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve device %s: %w", what, err)
	}
	return device, nil
}
