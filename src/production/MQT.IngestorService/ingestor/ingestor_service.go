package mqtingestor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/resolver"
	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Metrics"
	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
)

// Outcome is the fate of one message
type Outcome string

const (
	OutcomeStored       Outcome = "stored"
	OutcomeDecodeFailed Outcome = "decode_failed"
	OutcomeInvalid      Outcome = "invalid"
	OutcomeUnresolved   Outcome = "unresolved"
	OutcomeStoreFailed  Outcome = "store_failed"
	OutcomePanic        Outcome = "panic"
	// OutcomeIgnored marks messages on topics the ingestor publishes itself
	OutcomeIgnored      Outcome = "ignored"
)

// DeviceResolver maps decoded identifiers to stored devices
type DeviceResolver interface {
	ResolveByID(ctx context.Context, id int64) (*hardware_models.Device, error)
	ResolveByName(ctx context.Context, name string) (*hardware_models.Device, error)
}

// TemperatureWriter persists one reading per call
type TemperatureWriter interface {
	CreateTemperature(ctx context.Context, t *hardware_models.Temperature) error
}

// Rejection describes a message that was dropped
type Rejection struct {
	Message    Message
	Outcome    Outcome
	Device     string
	Err        error
	ReceivedAt time.Time
}

// RejectionSink is told about every dropped message. Reject runs on the
// dispatcher goroutine; wrap slow sinks in a SinkQueue.
type RejectionSink interface {
	Reject(ctx context.Context, r Rejection)
}

// Ingestor turns broker messages into temperature rows. Handle is safe to call
// from one dispatcher goroutine and from HTTP handlers at the same time.
type Ingestor struct {
	decoder      Decoder
	resolver     DeviceResolver
	store        TemperatureWriter
	storeTimeout time.Duration
	sinks        []RejectionSink
	ignoreFilter string
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func New(decoder Decoder, resolver DeviceResolver, store TemperatureWriter, storeTimeout time.Duration, log *logger.Logger, m *metrics.Metrics) *Ingestor {
	if log == nil {
		log = logger.NewNop()
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Ingestor{
		decoder:      decoder,
		resolver:     resolver,
		store:        store,
		storeTimeout: storeTimeout,
		logger:       log.WithComponent("ingestor"),
		metrics:      m,
		now:          time.Now,
	}
}

// AddRejectionSink registers a sink; call before messages flow
func (i *Ingestor) AddRejectionSink(sink RejectionSink) {
	i.sinks = append(i.sinks, sink)
}

// IgnoreTopicPrefix makes Handle drop everything under prefix without
// reporting it, so published error reports never come back as input.
func (i *Ingestor) IgnoreTopicPrefix(prefix string) {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		i.ignoreFilter = ""
		return
	}
	i.ignoreFilter = prefix + "/#"
}

// Handle processes one message. It never panics and writes at most one row.
func (i *Ingestor) Handle(ctx context.Context, msg Message) (outcome Outcome) {
	receivedAt := i.now().UTC()

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanic
			err := fmt.Errorf("panic: %v", r)
			i.logger.Logger.Error().Err(err).Str("topic", msg.Topic).Msg("Recovered from panic while handling message")
			i.reject(ctx, Rejection{Message: msg, Outcome: outcome, Err: err, ReceivedAt: receivedAt})
		}
		i.metrics.MessageProcessed(string(outcome))
	}()

	if i.ignoreFilter != "" && config.TopicMatches(i.ignoreFilter, strings.Trim(msg.Topic, "/")) {
		i.logger.Logger.Debug().Str("topic", msg.Topic).Msg("Ignoring message on error topic")
		return OutcomeIgnored
	}

	decoded, err := i.decoder.Decode(msg)
	if err != nil {
		i.logger.Logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Discarding undecodable message")
		i.reject(ctx, Rejection{Message: msg, Outcome: OutcomeDecodeFailed, Err: err, ReceivedAt: receivedAt})
		return OutcomeDecodeFailed
	}

	if math.IsNaN(decoded.Value) || math.IsInf(decoded.Value, 0) {
		err := fmt.Errorf("%w: %v", ErrNonFiniteValue, decoded.Value)
		i.logger.Logger.Warn().Err(err).Str("topic", msg.Topic).Str("device", decoded.Device()).Msg("Discarding invalid reading")
		i.reject(ctx, Rejection{Message: msg, Outcome: OutcomeInvalid, Device: decoded.Device(), Err: err, ReceivedAt: receivedAt})
		return OutcomeInvalid
	}

	timestamp := receivedAt
	if decoded.Timestamp != nil {
		timestamp = decoded.Timestamp.UTC()
	}

	storeCtx, cancel := context.WithTimeout(ctx, i.storeTimeout)
	defer cancel()

	device, err := i.resolve(storeCtx, decoded)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			i.logger.Logger.Warn().Str("topic", msg.Topic).Str("device", decoded.Device()).Msg("Discarding reading for unknown device")
		} else {
			i.logger.Logger.Error().Err(err).Str("topic", msg.Topic).Str("device", decoded.Device()).Msg("Device lookup failed")
		}
		i.reject(ctx, Rejection{Message: msg, Outcome: OutcomeUnresolved, Device: decoded.Device(), Err: err, ReceivedAt: receivedAt})
		return OutcomeUnresolved
	}

	reading := &hardware_models.Temperature{
		DeviceID:  device.ID,
		Value:     decoded.Value,
		Timestamp: timestamp,
	}
	if err := i.store.CreateTemperature(storeCtx, reading); err != nil {
		i.logger.Logger.Error().Err(err).Str("topic", msg.Topic).Int64("device_id", device.ID).Msg("Failed to store reading")
		i.reject(ctx, Rejection{Message: msg, Outcome: OutcomeStoreFailed, Device: decoded.Device(), Err: err, ReceivedAt: receivedAt})
		return OutcomeStoreFailed
	}

	i.logger.Logger.Debug().
		Int64("id", reading.ID).
		Int64("device_id", device.ID).
		Float64("temperature", reading.Value).
		Time("timestamp", reading.Timestamp).
		Msg("Stored reading")

	return OutcomeStored
}

func (i *Ingestor) resolve(ctx context.Context, d Decoded) (*hardware_models.Device, error) {
	if d.DeviceID > 0 {
		return i.resolver.ResolveByID(ctx, d.DeviceID)
	}
	return i.resolver.ResolveByName(ctx, d.DeviceName)
}

func (i *Ingestor) reject(ctx context.Context, r Rejection) {
	for _, sink := range i.sinks {
		sink.Reject(ctx, r)
	}
}
