package mqtingestor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	logger "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Logger"
	metrics "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models"
	interfaces "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Repository/Interfaces"
)

const (
	publishTimeout   = 2 * time.Second
	deliveryTimeout  = 5 * time.Second
	defaultQueueSize = 256
)

// Publisher sends a payload back to the broker
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// ErrorPublisher reports dropped messages to <prefix>/<device> so devices get feedback
type ErrorPublisher struct {
	publisher Publisher
	prefix    string
	logger    *logger.Logger
}

func NewErrorPublisher(publisher Publisher, prefix string, log *logger.Logger) *ErrorPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &ErrorPublisher{
		publisher: publisher,
		prefix:    strings.TrimRight(prefix, "/"),
		logger:    log.WithComponent("error_publisher"),
	}
}

type errorPayload struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
	Topic     string `json:"topic"`
	Device    string `json:"device,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (p *ErrorPublisher) Reject(ctx context.Context, r Rejection) {
	device := r.Device
	if device == "" {
		device = "unknown"
	}

	payload, err := json.Marshal(errorPayload{
		ErrorType: string(r.Outcome),
		Message:   errString(r.Err),
		Topic:     r.Message.Topic,
		Device:    r.Device,
		Timestamp: r.ReceivedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		p.logger.ErrorWithError(err, "Failed to marshal error payload")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	topic := fmt.Sprintf("%s/%s", p.prefix, device)
	if err := p.publisher.Publish(ctx, topic, payload); err != nil {
		p.logger.Logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish error")
		return
	}
	p.logger.Logger.Debug().Str("topic", topic).Str("error_type", string(r.Outcome)).Msg("Published error")
}

// ArchiveSink keeps a copy of every dropped message in the rejection store
type ArchiveSink struct {
	repo   interfaces.RejectionRepository
	logger *logger.Logger
}

func NewArchiveSink(repo interfaces.RejectionRepository, log *logger.Logger) *ArchiveSink {
	if log == nil {
		log = logger.NewNop()
	}
	return &ArchiveSink{repo: repo, logger: log.WithComponent("rejection_archive")}
}

func (a *ArchiveSink) Reject(ctx context.Context, r Rejection) {
	doc := mqtmodels.Rejection{
		Topic:      r.Message.Topic,
		Payload:    string(r.Message.Payload),
		Reason:     string(r.Outcome),
		Detail:     errString(r.Err),
		Device:     r.Device,
		ReceivedAt: r.ReceivedAt.UTC(),
	}
	if err := a.repo.InsertOne(ctx, doc); err != nil {
		a.logger.Logger.Warn().Err(err).Str("topic", r.Message.Topic).Msg("Failed to archive rejected message")
	}
}

// SinkQueue hands rejections to a slow sink on its own goroutine. When the
// buffer is full the rejection is dropped and counted, so a stalled broker or
// archive never holds up the dispatcher.
type SinkQueue struct {
	name    string
	sink    RejectionSink
	queue   chan Rejection
	done    chan struct{}
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
}

func NewSinkQueue(name string, sink RejectionSink, size int, log *logger.Logger, m *metrics.Metrics) *SinkQueue {
	if log == nil {
		log = logger.NewNop()
	}
	if size <= 0 {
		size = defaultQueueSize
	}
	q := &SinkQueue{
		name:    name,
		sink:    sink,
		queue:   make(chan Rejection, size),
		done:    make(chan struct{}),
		logger:  log.WithComponent("sink_queue"),
		metrics: m,
	}
	go q.run()
	return q
}

// Reject enqueues r without blocking
func (q *SinkQueue) Reject(_ context.Context, r Rejection) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	select {
	case q.queue <- r:
	default:
		q.metrics.RejectionDropped(q.name)
		q.logger.Logger.Warn().Str("sink", q.name).Str("topic", r.Message.Topic).Msg("Rejection queue full, dropping")
	}
}

// Close stops accepting rejections and waits for the queue to drain
func (q *SinkQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining %s queue: %w", q.name, ctx.Err())
	}
}

func (q *SinkQueue) run() {
	defer close(q.done)
	for r := range q.queue {
		q.deliver(r)
	}
}

func (q *SinkQueue) deliver(r Rejection) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Logger.Error().Str("sink", q.name).Interface("panic", p).Msg("Rejection sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	q.sink.Reject(ctx, r)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
