package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
)

func newTestContainer() *Container {
	return New(&config.Config{}, logger.NewNop())
}

func TestOptionalClientsDisabledWithoutConfig(t *testing.T) {
	c := newTestContainer()

	mongoClient, err := c.GetMongo()
	require.NoError(t, err)
	assert.Nil(t, mongoClient)

	redisClient, err := c.GetRedis()
	require.NoError(t, err)
	assert.Nil(t, redisClient)

	assert.NotNil(t, c.GetMetrics())
	assert.NotNil(t, c.GetLogger())
}

func TestShutdownRunsCleanupsInReverse(t *testing.T) {
	c := newTestContainer()

	var order []int
	c.AddCleanupFunc(func() error { order = append(order, 1); return nil })
	c.AddCleanupFunc(func() error { order = append(order, 2); return errors.New("close failed") })
	c.AddCleanupFunc(func() error { order = append(order, 3); return nil })

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []int{3, 2, 1}, order)

	// cleanups run once
	require.NoError(t, c.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownStopsAtDeadline(t *testing.T) {
	c := newTestContainer()

	called := false
	c.AddCleanupFunc(func() error { called = true; return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Shutdown(ctx))
	assert.False(t, called)
}
