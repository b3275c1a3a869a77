package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the mirror uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror republishes persisted envelopes onto a Kafka topic.
type KafkaMirror struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaMirror creates a mirror writing to topic on brokers.
func NewKafkaMirror(brokers []string, topic string) *KafkaMirror {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaMirror{writer: w, timeout: 5 * time.Second}
}

// record is the message value: {"action":"lvl1","data":{...}}.
type record struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
}

// Publish encodes env and writes it, keyed by instrument id.
func (m *KafkaMirror) Publish(ctx context.Context, env event.Envelope) error {
	msg, err := EncodeMessage(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}

// EncodeMessage builds the Kafka message for a persisted envelope.
// Decimal fields keep their exact string form.
func EncodeMessage(env event.Envelope) (kafka.Message, error) {
	var instrumentID int64
	switch p := env.Payload.(type) {
	case []domain.TickerBar:
		if len(p) > 0 {
			instrumentID = p[0].InstrumentID
		}
	case domain.Level1Quote:
		instrumentID = p.InstrumentID
	case domain.OrderRecord:
		instrumentID = p.InstrumentID
	default:
		return kafka.Message{}, fmt.Errorf("cannot mirror %s", env)
	}

	value, err := json.Marshal(record{Action: string(env.Action), Data: env.Payload})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(instrumentID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(env.Action)},
		},
	}, nil
}
