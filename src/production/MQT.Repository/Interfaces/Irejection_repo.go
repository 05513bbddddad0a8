package interfaces

import (
	"context"

	mqtmodels "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models"
)

type RejectionRepository interface {
	InsertOne(ctx context.Context, r mqtmodels.Rejection) error
}
