package implementation

import (
	"context"
	"database/sql"
	"fmt"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

type PostgresSensorRepository struct {
	db *sql.DB
}

func NewPostgresSensorRepository(db *sql.DB) *PostgresSensorRepository {
	return &PostgresSensorRepository{db: db}
}

func (r *PostgresSensorRepository) CreateSensor(ctx context.Context, sensor *hardware_models.Sensor) error {
	query := `INSERT INTO sensors (type, unit, plant_id) VALUES ($1, $2, $3) RETURNING id`

	if err := r.db.QueryRowContext(ctx, query, sensor.Type, sensor.Unit, sensor.PlantID).Scan(&sensor.ID); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("plant %d: %w", sensor.PlantID, interfaces.ErrReferenceMissing)
		}
		return err
	}

	return nil
}

func (r *PostgresSensorRepository) GetSensor(ctx context.Context, id int64) (*hardware_models.Sensor, error) {
	var sensor hardware_models.Sensor
	err := r.db.QueryRowContext(ctx, `SELECT id, type, unit, plant_id FROM sensors WHERE id = $1`, id).
		Scan(&sensor.ID, &sensor.Type, &sensor.Unit, &sensor.PlantID)
	if err != nil {
		return nil, err
	}

	return &sensor, nil
}

func (r *PostgresSensorRepository) ListSensorsByPlant(ctx context.Context, plantID int64) ([]hardware_models.Sensor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type, unit, plant_id FROM sensors WHERE plant_id = $1 ORDER BY id ASC`, plantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sensors := make([]hardware_models.Sensor, 0)
	for rows.Next() {
		var sensor hardware_models.Sensor
		if err := rows.Scan(&sensor.ID, &sensor.Type, &sensor.Unit, &sensor.PlantID); err != nil {
			return nil, err
		}
		sensors = append(sensors, sensor)
	}

	return sensors, rows.Err()
}

func (r *PostgresSensorRepository) UpdateSensor(ctx context.Context, sensor *hardware_models.Sensor) error {
	result, err := r.db.ExecContext(ctx, `UPDATE sensors SET type = $1, unit = $2 WHERE id = $3`,
		sensor.Type, sensor.Unit, sensor.ID)
	if err != nil {
		return err
	}

	return requireAffected(result)
}

func (r *PostgresSensorRepository) DeleteSensor(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sensors WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireAffected(result)
}

type PostgresSensorReadingRepository struct {
	db *sql.DB
}

func NewPostgresSensorReadingRepository(db *sql.DB) *PostgresSensorReadingRepository {
	return &PostgresSensorReadingRepository{db: db}
}

func (r *PostgresSensorReadingRepository) CreateSensorReading(ctx context.Context, reading *hardware_models.SensorReading) error {
	query := `INSERT INTO sensor_readings (value, "timestamp", sensor_id) VALUES ($1, $2, $3) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, reading.Value, reading.Timestamp.UTC(), reading.SensorID).Scan(&reading.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("sensor %d: %w", reading.SensorID, interfaces.ErrReferenceMissing)
		}
		return err
	}

	return nil
}

func (r *PostgresSensorReadingRepository) ListReadingsBySensor(ctx context.Context, sensorID int64) ([]hardware_models.SensorReading, error) {
	query := `
		SELECT id, sensor_id, value, "timestamp"
		FROM sensor_readings
		WHERE sensor_id = $1
		ORDER BY "timestamp" DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]hardware_models.SensorReading, 0)
	for rows.Next() {
		var reading hardware_models.SensorReading
		if err := rows.Scan(&reading.ID, &reading.SensorID, &reading.Value, &reading.Timestamp); err != nil {
			return nil, err
		}
		reading.Timestamp = reading.Timestamp.UTC()
		readings = append(readings, reading)
	}

	return readings, rows.Err()
}
