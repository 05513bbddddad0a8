package interfaces

import (
	"context"

	auth_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/auth"
)

type UserRepository interface {
	// Create assigns a user id when empty. A taken username yields ErrDuplicate.
	Create(ctx context.Context, user *auth_models.User) (*auth_models.User, error)

	// Lookups return nil, nil when nothing matches
	GetByID(ctx context.Context, userID string) (*auth_models.User, error)
	GetByUsername(ctx context.Context, username string) (*auth_models.User, error)
	GetByRole(ctx context.Context, role string) ([]*auth_models.User, error)
	GetAll(ctx context.Context) ([]*auth_models.User, error)

	Update(ctx context.Context, user *auth_models.User) error
}
