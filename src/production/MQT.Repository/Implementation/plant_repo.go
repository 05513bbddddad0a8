package implementation

import (
	"context"
	"database/sql"
	"fmt"

	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

type PostgresPlantRepository struct {
	db *sql.DB
}

func NewPostgresPlantRepository(db *sql.DB) *PostgresPlantRepository {
	return &PostgresPlantRepository{db: db}
}

func (r *PostgresPlantRepository) CreatePlant(ctx context.Context, plant *hardware_models.Plant) error {
	query := `INSERT INTO plants (name, location, user_id) VALUES ($1, $2, $3) RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, plant.Name, plant.Location, plant.UserID).Scan(&plant.ID, &plant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("plant %q: %w", plant.Name, interfaces.ErrDuplicate)
		}
		return err
	}

	return nil
}

func (r *PostgresPlantRepository) GetPlant(ctx context.Context, id int64) (*hardware_models.Plant, error) {
	query := `SELECT id, name, location, user_id, created_at FROM plants WHERE id = $1`

	var plant hardware_models.Plant
	var location sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&plant.ID, &plant.Name, &location, &plant.UserID, &plant.CreatedAt)
	if err != nil {
		return nil, err
	}
	if location.Valid {
		plant.Location = &location.String
	}

	return &plant, nil
}

func (r *PostgresPlantRepository) ListPlantsByUser(ctx context.Context, userID string) ([]hardware_models.Plant, error) {
	query := `SELECT id, name, location, user_id, created_at FROM plants WHERE user_id = $1 ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plants := make([]hardware_models.Plant, 0)
	for rows.Next() {
		var plant hardware_models.Plant
		var location sql.NullString
		if err := rows.Scan(&plant.ID, &plant.Name, &location, &plant.UserID, &plant.CreatedAt); err != nil {
			return nil, err
		}
		if location.Valid {
			plant.Location = &location.String
		}
		plants = append(plants, plant)
	}

	return plants, rows.Err()
}

func (r *PostgresPlantRepository) UpdatePlant(ctx context.Context, plant *hardware_models.Plant) error {
	result, err := r.db.ExecContext(ctx, `UPDATE plants SET name = $1, location = $2 WHERE id = $3`,
		plant.Name, plant.Location, plant.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("plant %q: %w", plant.Name, interfaces.ErrDuplicate)
		}
		return err
	}

	return requireAffected(result)
}

func (r *PostgresPlantRepository) DeletePlant(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM plants WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireAffected(result)
}

// requireAffected maps a no-op UPDATE or DELETE to sql.ErrNoRows
func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
