package mqtingestor

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.IngestorService/resolver"
	metrics "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Metrics"
	mqtmodels "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models"
	hardware_models "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Models/hardware"
)

type fakeDevices struct {
	devices []hardware_models.Device
}

func (f *fakeDevices) GetDeviceByID(_ context.Context, id int64) (*hardware_models.Device, error) {
	for i := range f.devices {
		if f.devices[i].ID == id {
			d := f.devices[i]
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeDevices) FindDeviceByName(_ context.Context, name string) (*hardware_models.Device, error) {
	for i := range f.devices {
		if f.devices[i].Name == name {
			d := f.devices[i]
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

type fakeStore struct {
	mu     sync.Mutex
	rows   []hardware_models.Temperature
	err    error
	panics bool
}

func (f *fakeStore) CreateTemperature(_ context.Context, t *hardware_models.Temperature) error {
	if f.panics {
		panic("driver exploded")
	}
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, *t)
	return nil
}

type recordingSink struct {
	rejections []Rejection
}

func (s *recordingSink) Reject(_ context.Context, r Rejection) {
	s.rejections = append(s.rejections, r)
}

var fixedNow = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func newTestIngestor(t *testing.T, decoder Decoder, store *fakeStore) (*Ingestor, *metrics.Metrics, *recordingSink) {
	t.Helper()
	devices := &fakeDevices{devices: []hardware_models.Device{
		{ID: 11, Name: "oven", UserID: "u1"},
		{ID: 12, Name: "fridge", UserID: "u2"},
	}}
	m := metrics.New()
	ing := New(decoder, resolver.New(devices), store, time.Second, nil, m)
	ing.now = func() time.Time { return fixedNow }
	sink := &recordingSink{}
	ing.AddRejectionSink(sink)
	return ing, m, sink
}

func msg(topic, payload string) Message {
	return Message{Topic: topic, Payload: []byte(payload)}
}

func TestHandle_StoresDecodedReading(t *testing.T) {
	store := &fakeStore{}
	ing, m, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	outcome := ing.Handle(context.Background(), msg("device/11", `"22.5"`))

	assert.Equal(t, OutcomeStored, outcome)
	require.Len(t, store.rows, 1)
	assert.Equal(t, int64(11), store.rows[0].DeviceID)
	assert.Equal(t, 22.5, store.rows[0].Value)
	assert.Equal(t, fixedNow, store.rows[0].Timestamp)
	assert.Empty(t, sink.rejections)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageCounter(string(OutcomeStored))))
}

func TestHandle_PayloadTimestampIsTrusted(t *testing.T) {
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(t, DocumentDecoder{}, store)

	outcome := ing.Handle(context.Background(), msg("temperature",
		`{"device_name": "fridge", "temperature": 4.5, "timestamp": "2024-01-02T03:04:05Z"}`))

	assert.Equal(t, OutcomeStored, outcome)
	require.Len(t, store.rows, 1)
	assert.Equal(t, int64(12), store.rows[0].DeviceID)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), store.rows[0].Timestamp)
}

func TestHandle_DuplicateDeliveryWritesTwice(t *testing.T) {
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	m := msg("device/11", "20.0")
	assert.Equal(t, OutcomeStored, ing.Handle(context.Background(), m))
	assert.Equal(t, OutcomeStored, ing.Handle(context.Background(), m))
	assert.Len(t, store.rows, 2)
}

func TestHandle_PreservesDeliveryOrder(t *testing.T) {
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	ing.Handle(context.Background(), msg("device/11", "20.0"))
	ing.Handle(context.Background(), msg("device/11", "21.0"))

	require.Len(t, store.rows, 2)
	assert.Equal(t, 20.0, store.rows[0].Value)
	assert.Equal(t, 21.0, store.rows[1].Value)
	assert.Less(t, store.rows[0].ID, store.rows[1].ID)
}

func TestHandle_UnknownDeviceWritesNothing(t *testing.T) {
	store := &fakeStore{}
	ing, m, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	assert.Equal(t, OutcomeUnresolved, ing.Handle(context.Background(), msg("device/999", "20.0")))
	assert.Empty(t, store.rows)

	require.Len(t, sink.rejections, 1)
	assert.Equal(t, "999", sink.rejections[0].Device)
	assert.ErrorIs(t, sink.rejections[0].Err, resolver.ErrNotFound)

	assert.Equal(t, OutcomeStored, ing.Handle(context.Background(), msg("device/11", "20.0")))
	assert.Len(t, store.rows, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageCounter(string(OutcomeUnresolved))))
}

func TestHandle_UndecodablePayloadWritesNothing(t *testing.T) {
	store := &fakeStore{}
	ing, _, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	assert.Equal(t, OutcomeDecodeFailed, ing.Handle(context.Background(), msg("device/11", "not-a-number")))
	assert.Empty(t, store.rows)
	require.Len(t, sink.rejections, 1)
	assert.ErrorIs(t, sink.rejections[0].Err, ErrMalformedPayload)

	assert.Equal(t, OutcomeStored, ing.Handle(context.Background(), msg("device/11", "18")))
}

func TestHandle_NonFiniteValueIsInvalid(t *testing.T) {
	store := &fakeStore{}
	ing, _, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	for _, payload := range []string{"NaN", "+Inf", "-Inf"} {
		assert.Equal(t, OutcomeInvalid, ing.Handle(context.Background(), msg("device/11", payload)), payload)
	}
	assert.Empty(t, store.rows)
	require.Len(t, sink.rejections, 3)
	assert.ErrorIs(t, sink.rejections[0].Err, ErrNonFiniteValue)
}

func TestHandle_StoreFailureIsContained(t *testing.T) {
	store := &fakeStore{err: errors.New("connection reset")}
	ing, m, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	assert.Equal(t, OutcomeStoreFailed, ing.Handle(context.Background(), msg("device/11", "20")))
	require.Len(t, sink.rejections, 1)
	assert.Equal(t, OutcomeStoreFailed, sink.rejections[0].Outcome)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageCounter(string(OutcomeStoreFailed))))

	store.err = nil
	assert.Equal(t, OutcomeStored, ing.Handle(context.Background(), msg("device/11", "20")))
}

func TestHandle_RecoversPanics(t *testing.T) {
	store := &fakeStore{panics: true}
	ing, m, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)

	var outcome Outcome
	require.NotPanics(t, func() {
		outcome = ing.Handle(context.Background(), msg("device/11", "20"))
	})
	assert.Equal(t, OutcomePanic, outcome)
	require.Len(t, sink.rejections, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageCounter(string(OutcomePanic))))
}

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	f.topic = topic
	f.payload = payload
	return f.err
}

func TestErrorPublisher(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewErrorPublisher(pub, "ingestor/errors/", nil)

	sink.Reject(context.Background(), Rejection{
		Message:    msg("device/999", "20"),
		Outcome:    OutcomeUnresolved,
		Device:     "999",
		Err:        resolver.ErrNotFound,
		ReceivedAt: fixedNow,
	})

	assert.Equal(t, "ingestor/errors/999", pub.topic)
	assert.JSONEq(t, `{
		"error_type": "unresolved",
		"message": "device not found",
		"topic": "device/999",
		"device": "999",
		"timestamp": "2025-06-01T08:30:00.000Z"
	}`, string(pub.payload))

	sink.Reject(context.Background(), Rejection{Message: msg("device/", ""), Outcome: OutcomeDecodeFailed, ReceivedAt: fixedNow})
	assert.Equal(t, "ingestor/errors/unknown", pub.topic)
}

type fakeArchive struct {
	docs []mqtmodels.Rejection
	err  error
}

func (f *fakeArchive) InsertOne(_ context.Context, r mqtmodels.Rejection) error {
	f.docs = append(f.docs, r)
	return f.err
}

func TestArchiveSink(t *testing.T) {
	archive := &fakeArchive{}
	store := &fakeStore{}
	ing, _, _ := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)
	ing.AddRejectionSink(NewArchiveSink(archive, nil))

	ing.Handle(context.Background(), msg("device/11", "warm"))

	require.Len(t, archive.docs, 1)
	doc := archive.docs[0]
	assert.Equal(t, "device/11", doc.Topic)
	assert.Equal(t, "warm", doc.Payload)
	assert.Equal(t, string(OutcomeDecodeFailed), doc.Reason)
	assert.Contains(t, doc.Detail, "malformed payload")
	assert.Equal(t, fixedNow, doc.ReceivedAt)

	archive.err = errors.New("mongo down")
	assert.NotPanics(t, func() { ing.Handle(context.Background(), msg("device/11", "warm")) })
}

// loopbackPublisher feeds every publication straight back into the ingestor,
// the way a broker would if the subscription covered the error topics.
type loopbackPublisher struct {
	ing    *Ingestor
	topics []string
}

func (l *loopbackPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	l.topics = append(l.topics, topic)
	if len(l.topics) > 5 {
		return errors.New("loop detected")
	}
	l.ing.Handle(ctx, Message{Topic: topic, Payload: payload})
	return nil
}

func TestHandle_IgnoresOwnErrorTopic(t *testing.T) {
	store := &fakeStore{}
	ing, m, sink := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)
	loop := &loopbackPublisher{ing: ing}
	ing.AddRejectionSink(NewErrorPublisher(loop, "device/errors", nil))
	ing.IgnoreTopicPrefix("device/errors/")

	assert.Equal(t, OutcomeUnresolved, ing.Handle(context.Background(), msg("device/999", "20")))

	assert.Equal(t, []string{"device/errors/999"}, loop.topics)
	require.Len(t, sink.rejections, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessageCounter(string(OutcomeIgnored))))

	assert.Equal(t, OutcomeIgnored, ing.Handle(context.Background(), msg("device/errors/11", "20")))
	assert.Equal(t, OutcomeIgnored, ing.Handle(context.Background(), msg("device/errors", "20")))
	assert.Len(t, sink.rejections, 1)
	assert.Len(t, loop.topics, 1)
	assert.Empty(t, store.rows)

	// siblings of the prefix are still ingested
	assert.Equal(t, OutcomeStored, ing.Handle(context.Background(), msg("device/11", "20")))
}

// blockingSink stalls every delivery until release is closed
type blockingSink struct {
	started   chan struct{}
	release   chan struct{}
	mu        sync.Mutex
	delivered []Rejection
}

func newBlockingSink() *blockingSink {
	return &blockingSink{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (b *blockingSink) Reject(_ context.Context, r Rejection) {
	b.started <- struct{}{}
	<-b.release
	b.mu.Lock()
	b.delivered = append(b.delivered, r)
	b.mu.Unlock()
}

func TestSinkQueue_StalledSinkDoesNotDelayStores(t *testing.T) {
	store := &fakeStore{}
	ing, m, _ := newTestIngestor(t, TopicDecoder{Prefix: "device"}, store)
	slow := newBlockingSink()
	queue := NewSinkQueue("archive", slow, 1, nil, m)
	ing.AddRejectionSink(queue)

	assert.Equal(t, OutcomeUnresolved, ing.Handle(context.Background(), msg("device/999", "20")))
	select {
	case <-slow.started:
	case <-time.After(time.Second):
		t.Fatal("queued rejection never reached the sink")
	}

	stored := make(chan Outcome, 1)
	go func() { stored <- ing.Handle(context.Background(), msg("device/11", "21")) }()
	select {
	case outcome := <-stored:
		assert.Equal(t, OutcomeStored, outcome)
	case <-time.After(time.Second):
		t.Fatal("a stalled sink held up the next reading")
	}
	store.mu.Lock()
	assert.Len(t, store.rows, 1)
	store.mu.Unlock()

	// the worker holds one, the buffer holds one, the third is dropped
	ing.Handle(context.Background(), msg("device/998", "20"))
	ing.Handle(context.Background(), msg("device/997", "20"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionDroppedCounter("archive")))

	close(slow.release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, queue.Close(ctx))

	slow.mu.Lock()
	defer slow.mu.Unlock()
	require.Len(t, slow.delivered, 2)
	assert.Equal(t, "999", slow.delivered[0].Device)
	assert.Equal(t, "998", slow.delivered[1].Device)

	// rejections after Close are discarded
	assert.NotPanics(t, func() { ing.Handle(context.Background(), msg("device/996", "20")) })
}

type panickingSink struct{}

func (panickingSink) Reject(context.Context, Rejection) { panic("sink exploded") }

func TestSinkQueue_SurvivesPanickingSink(t *testing.T) {
	queue := NewSinkQueue("error_publisher", panickingSink{}, 4, nil, nil)
	queue.Reject(context.Background(), Rejection{Outcome: OutcomeInvalid})
	queue.Reject(context.Background(), Rejection{Outcome: OutcomeInvalid})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, queue.Close(ctx))
	require.NoError(t, queue.Close(ctx))
}

func TestSinkQueue_CloseHonoursDeadline(t *testing.T) {
	slow := newBlockingSink()
	defer close(slow.release)
	queue := NewSinkQueue("archive", slow, 4, nil, nil)
	queue.Reject(context.Background(), Rejection{Outcome: OutcomeInvalid})
	<-slow.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, queue.Close(ctx), context.DeadlineExceeded)
}
