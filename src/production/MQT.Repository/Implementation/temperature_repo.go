package implementation

import (
	"context"
	"database/sql"
	"fmt"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

type PostgresTemperatureRepository struct {
	db *sql.DB
}

func NewPostgresTemperatureRepository(db *sql.DB) *PostgresTemperatureRepository {
	return &PostgresTemperatureRepository{db: db}
}

// CreateTemperature writes one row in a dedicated transaction. The transaction is
// rolled back on every early return; Rollback after Commit is a no-op.
func (r *PostgresTemperatureRepository) CreateTemperature(ctx context.Context, t *hardware_models.Temperature) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Rollback()

	query := `INSERT INTO temperatures (value, "timestamp", device_id) VALUES ($1, $2, $3) RETURNING id`
	if err := txn.QueryRowContext(ctx, query, t.Value, t.Timestamp.UTC(), t.DeviceID).Scan(&t.ID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("device %d: %w", t.DeviceID, interfaces.ErrReferenceMissing)
		}
		return fmt.Errorf("insert temperature: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit temperature: %w", err)
	}

	return nil
}

func (r *PostgresTemperatureRepository) ListByDevice(ctx context.Context, deviceID int64) ([]hardware_models.Temperature, error) {
	query := `
		SELECT id, device_id, value, "timestamp"
		FROM temperatures
		WHERE device_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTemperatures(rows)
}

func (r *PostgresTemperatureRepository) ListByOwner(ctx context.Context, userID string) ([]hardware_models.Temperature, error) {
	query := `
		SELECT t.id, t.device_id, t.value, t."timestamp"
		FROM temperatures t
		JOIN devices d ON d.id = t.device_id
		WHERE d.user_id = $1
		ORDER BY t.id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTemperatures(rows)
}

func (r *PostgresTemperatureRepository) ListAll(ctx context.Context) ([]hardware_models.Temperature, error) {
	query := `SELECT id, device_id, value, "timestamp" FROM temperatures ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanTemperatures(rows)
}

func (r *PostgresTemperatureRepository) GetLatest(ctx context.Context, userID string, deviceID int64) (*hardware_models.Temperature, error) {
	query := `
		SELECT t.id, t.device_id, t.value, t."timestamp"
		FROM temperatures t
		JOIN devices d ON d.id = t.device_id
		WHERE ($1::text = '' OR d.user_id = $1::text)
		  AND ($2::bigint = 0 OR t.device_id = $2::bigint)
		ORDER BY t."timestamp" DESC, t.id DESC
		LIMIT 1
	`

	var t hardware_models.Temperature
	err := r.db.QueryRowContext(ctx, query, userID, deviceID).Scan(&t.ID, &t.DeviceID, &t.Value, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	t.Timestamp = t.Timestamp.UTC()

	return &t, nil
}

func (r *PostgresTemperatureRepository) scanTemperatures(rows *sql.Rows) ([]hardware_models.Temperature, error) {
	temperatures := make([]hardware_models.Temperature, 0)

	for rows.Next() {
		var t hardware_models.Temperature
		if err := rows.Scan(&t.ID, &t.DeviceID, &t.Value, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		temperatures = append(temperatures, t)
	}

	return temperatures, rows.Err()
}
