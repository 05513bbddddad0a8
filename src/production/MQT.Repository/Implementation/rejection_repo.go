package implementation

import (
	"context"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models"
	"go.mongodb.org/mongo-driver/mongo"
)

const rejectionInsertTimeout = 3 * time.Second

type MongoRejectionRepository struct {
	coll *mongo.Collection
}

func NewMongoRejectionRepository(coll *mongo.Collection) *MongoRejectionRepository {
	return &MongoRejectionRepository{coll: coll}
}

func (r *MongoRejectionRepository) InsertOne(ctx context.Context, rejection mqtmodels.Rejection) error {
	ctx, cancel := context.WithTimeout(ctx, rejectionInsertTimeout)
	defer cancel()

	if rejection.ReceivedAt.IsZero() {
		rejection.ReceivedAt = time.Now().UTC()
	}
	_, err := r.coll.InsertOne(ctx, rejection)
	return err
}
