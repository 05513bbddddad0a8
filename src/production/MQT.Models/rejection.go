package mqtmodels

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Rejection is an inbound broker message that did not become a temperature row.
// It is archived as-is so operators can inspect malformed or unroutable traffic.
type Rejection struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Topic      string             `bson:"topic" json:"topic"`
	Payload    string             `bson:"payload" json:"payload"`
	Reason     string             `bson:"reason" json:"reason"`
	Detail     string             `bson:"detail" json:"detail"`
	Device     string             `bson:"device,omitempty" json:"device,omitempty"`
	ReceivedAt time.Time          `bson:"received_at" json:"received_at"`
}
