// Package events publishes change notifications for catalog, order and
// user mutations. Publishing happens after the unit of work commits and
// never fails the operation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type EventType string

const (
	CompanyCreated      EventType = "company_created"
	CompanyUpdated      EventType = "company_updated"
	CompanyDeleted      EventType = "company_deleted"
	ServiceTypeCreated  EventType = "service_type_created"
	ServiceTypeUpdated  EventType = "service_type_updated"
	ServiceTypeDeleted  EventType = "service_type_deleted"
	OrderOpened         EventType = "order_opened"
	OrderUpdated        EventType = "order_updated"
	OrderStatusChanged  EventType = "order_status_changed"
	OrderDeleted        EventType = "order_deleted"
	UserCreated         EventType = "user_created"
	UserDeleted         EventType = "user_deleted"
	UserPasswordChanged EventType = "user_password_changed"
)

// Event is one change notification.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	EntityID   int64     `json:"entity_id"`
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// NewEvent stamps a new event with a fresh id.
func NewEvent(eventType EventType, entityID int64, actor string, at time.Time, data any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		EntityID:   entityID,
		Actor:      actor,
		OccurredAt: at,
		Data:       data,
	}
}

// Key is the partitioning key of the event: all events of one entity land
// on the same partition.
func (ev Event) Key() string {
	return fmt.Sprintf("%s/%d", ev.Type.entity(), ev.EntityID)
}

func (t EventType) entity() string {
	switch t {
	case CompanyCreated, CompanyUpdated, CompanyDeleted:
		return "company"
	case ServiceTypeCreated, ServiceTypeUpdated, ServiceTypeDeleted:
		return "service_type"
	case UserCreated, UserDeleted, UserPasswordChanged:
		return "user"
	}
	return "order"
}

// Nop discards every event. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Produce(Event) {}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
}

// NewProducer creates the topic if needed and starts the delivery loop.
func NewProducer(brokers []string, logger *zap.Logger, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.Error(err))
	}

	p := newProducer(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
		Topic:    topic,
	}, logger)
	go p.eventLoop()
	return p, nil
}

func newProducer(writer KafkaWriter, logger *zap.Logger) *Producer {
	return &Producer{
		writer:    writer,
		events:    make(chan Event, 1000),
		logger:    logger.Named("kafka_producer"),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Produce queues ev for delivery. A full queue drops the event.
func (p *Producer) Produce(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("entity_id", ev.EntityID),
		)
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.sendEvent(context.Background(), ev)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain delivers whatever is still queued at shutdown.
func (p *Producer) drain() {
	for {
		select {
		case ev := <-p.events:
			p.sendEvent(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, ev Event) {
	value, err := jsonMarshal(ev)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("event_id", ev.ID.String()),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Key()),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(ev.Type)),
			zap.String("event_id", ev.ID.String()),
		)
	}
}

// Close stops the delivery loop after flushing queued events, then closes
// the writer.
func (p *Producer) Close() {
	close(p.closeChan)
	<-p.done
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
