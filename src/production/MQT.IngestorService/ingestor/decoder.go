package mqtingestor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	config "gitlab.com/maplesense1/mpt.temperature_server/src/production/MQT.Config"
)

var (
	ErrMalformedTopic    = errors.New("malformed topic")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrMissingIdentifier = errors.New("missing device identifier")
	ErrNonFiniteValue    = errors.New("value is not a finite number")
)

// Message is one inbound broker message
type Message struct {
	Topic   string
	Payload []byte
}

// Decoded is the device reference and reading carried by a message.
// DeviceID is zero when the message names its device instead.
type Decoded struct {
	DeviceID   int64
	DeviceName string
	Value      float64
	Timestamp  *time.Time
}

// Device returns the identifier used in logs and error topics
func (d Decoded) Device() string {
	if d.DeviceID > 0 {
		return strconv.FormatInt(d.DeviceID, 10)
	}
	return d.DeviceName
}

type Decoder interface {
	Decode(msg Message) (Decoded, error)
}

// NewDecoder returns the decoder for the deployment's wire format
func NewDecoder(format, topicPrefix string) (Decoder, error) {
	switch format {
	case config.PayloadFormatTopic:
		return TopicDecoder{Prefix: topicPrefix}, nil
	case config.PayloadFormatDocument:
		return DocumentDecoder{}, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// TopicDecoder reads the device id from the last topic segment
// (<prefix>/<id>) and the temperature from a bare decimal payload.
type TopicDecoder struct {
	Prefix string
}

func (d TopicDecoder) Decode(msg Message) (Decoded, error) {
	topic := strings.Trim(msg.Topic, "/")
	if d.Prefix != "" && !strings.HasPrefix(topic, strings.Trim(d.Prefix, "/")+"/") {
		return Decoded{}, fmt.Errorf("%w: %q does not start with %q", ErrMalformedTopic, msg.Topic, d.Prefix)
	}

	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return Decoded{}, fmt.Errorf("%w: %q has no device segment", ErrMissingIdentifier, msg.Topic)
	}

	id, err := strconv.ParseInt(topic[idx+1:], 10, 64)
	if err != nil || id <= 0 {
		return Decoded{}, fmt.Errorf("%w: device segment %q is not a positive integer", ErrMalformedTopic, topic[idx+1:])
	}

	raw := strings.TrimSpace(string(msg.Payload))
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = strings.TrimSpace(raw[1 : len(raw)-1])
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %q is not a number", ErrMalformedPayload, truncate(raw))
	}

	return Decoded{DeviceID: id, Value: value}, nil
}

// DocumentDecoder reads a JSON object with device_id or device_name,
// temperature or value, and an optional ISO-8601 timestamp. device_name is
// used when device_id is absent or not a positive integer.
type DocumentDecoder struct{}

type document struct {
	DeviceID    json.RawMessage `json:"device_id"`
	DeviceName  string          `json:"device_name"`
	Temperature *float64        `json:"temperature"`
	Value       *float64        `json:"value"`
	Timestamp   *string         `json:"timestamp"`
}

func (DocumentDecoder) Decode(msg Message) (Decoded, error) {
	var doc document
	if err := json.Unmarshal(bytes.TrimSpace(msg.Payload), &doc); err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var out Decoded
	if len(doc.DeviceID) > 0 && string(doc.DeviceID) != "null" {
		// an unusable device_id falls back to device_name
		id, name, err := parseDeviceID(doc.DeviceID)
		switch {
		case err == nil:
			out.DeviceID = id
			out.DeviceName = name
		case strings.TrimSpace(doc.DeviceName) == "":
			return Decoded{}, err
		}
	}
	if out.DeviceID == 0 && out.DeviceName == "" {
		out.DeviceName = strings.TrimSpace(doc.DeviceName)
	}
	if out.DeviceID == 0 && out.DeviceName == "" {
		return Decoded{}, ErrMissingIdentifier
	}

	switch {
	case doc.Temperature != nil:
		out.Value = *doc.Temperature
	case doc.Value != nil:
		out.Value = *doc.Value
	default:
		return Decoded{}, fmt.Errorf("%w: no temperature or value field", ErrMalformedPayload)
	}

	if doc.Timestamp != nil && strings.TrimSpace(*doc.Timestamp) != "" {
		ts, err := ParseTimestamp(*doc.Timestamp)
		if err != nil {
			return Decoded{}, err
		}
		out.Timestamp = &ts
	}

	return out, nil
}

// parseDeviceID accepts 11, "11" or a non-numeric string, which is taken as a name
func parseDeviceID(raw json.RawMessage) (int64, string, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		id, err := n.Int64()
		if err != nil || id <= 0 {
			return 0, "", fmt.Errorf("%w: device_id %s is not a positive integer", ErrMalformedPayload, raw)
		}
		return id, "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, "", fmt.Errorf("%w: device_id must be a string or integer", ErrMalformedPayload)
	}
	s = strings.TrimSpace(s)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id <= 0 {
			return 0, "", fmt.Errorf("%w: device_id %q is not a positive integer", ErrMalformedPayload, s)
		}
		return id, "", nil
	}
	return 0, s, nil
}

// Timestamps without a zone are UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC3339 and zoneless ISO-8601, returning UTC
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrMalformedPayload, truncate(s))
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
