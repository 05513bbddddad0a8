package implementation

import (
	"context"
	"database/sql"
	"fmt"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

const deviceColumns = `id, name, user_id, created_at`

type PostgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) *PostgresDeviceRepository {
	return &PostgresDeviceRepository{db: db}
}

func (r *PostgresDeviceRepository) CreateDevice(ctx context.Context, device *hardware_models.Device) error {
	query := `INSERT INTO devices (name, user_id) VALUES ($1, $2) RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, device.Name, device.UserID).Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("device %q: %w", device.Name, interfaces.ErrDuplicate)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("owner %s: %w", device.UserID, interfaces.ErrReferenceMissing)
		}
		return err
	}

	return nil
}

func (r *PostgresDeviceRepository) GetDeviceByID(ctx context.Context, id int64) (*hardware_models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	var device hardware_models.Device
	err := r.db.QueryRowContext(ctx, query, id).Scan(&device.ID, &device.Name, &device.UserID, &device.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &device, nil
}

// FindDeviceByName picks the oldest device when several owners reuse a name
func (r *PostgresDeviceRepository) FindDeviceByName(ctx context.Context, name string) (*hardware_models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE name = $1 ORDER BY id ASC LIMIT 1`

	var device hardware_models.Device
	err := r.db.QueryRowContext(ctx, query, name).Scan(&device.ID, &device.Name, &device.UserID, &device.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *PostgresDeviceRepository) ListDevicesByOwner(ctx context.Context, userID string) ([]hardware_models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE user_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDevices(rows)
}

func (r *PostgresDeviceRepository) ListDevices(ctx context.Context) ([]hardware_models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDevices(rows)
}

// DeleteDevice removes the device and, through the foreign key, its readings
func (r *PostgresDeviceRepository) DeleteDevice(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func scanDevices(rows *sql.Rows) ([]hardware_models.Device, error) {
	devices := make([]hardware_models.Device, 0)
	for rows.Next() {
		var device hardware_models.Device
		if err := rows.Scan(&device.ID, &device.Name, &device.UserID, &device.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}

	return devices, rows.Err()
}
