package interfaces

import (
	"context"
	"time"
)

// TokenRevocationRepository remembers logged-out access tokens until they would expire anyway
type TokenRevocationRepository interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
