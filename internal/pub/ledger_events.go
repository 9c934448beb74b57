package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/id"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventEntryPosted = "entry.posted"
	EventEntryVoided = "entry.voided"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LedgerEvent is the message body written to the ledger topic.
type LedgerEvent struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	RequestID string               `json:"request_id"`
	EntryID   int64                `json:"entry_id"`
	Status    domain.EntryStatus   `json:"status"`
	Actor     string               `json:"actor"`
	Entry     *domain.JournalEntry `json:"entry,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// LedgerEventPublisher writes committed ledger changes to kafka, keyed by
// entry id so one entry's events stay ordered.
type LedgerEventPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
		}),
	}
}

func NewLedgerEventPublisher(writer messageWriter, logger *zap.Logger) *LedgerEventPublisher {
	return &LedgerEventPublisher{writer: writer, logger: logger}
}

func (p *LedgerEventPublisher) PublishEntryPosted(ctx context.Context, requestID string, entry *domain.JournalEntry) error {
	return p.publish(ctx, &LedgerEvent{
		EventType: EventEntryPosted,
		RequestID: requestID,
		EntryID:   entry.ID,
		Status:    entry.Status,
		Actor:     entry.CreatedBy,
		Entry:     entry,
	})
}

func (p *LedgerEventPublisher) PublishEntryVoided(ctx context.Context, requestID string, entryID int64, voidedBy string) error {
	return p.publish(ctx, &LedgerEvent{
		EventType: EventEntryVoided,
		RequestID: requestID,
		EntryID:   entryID,
		Status:    domain.EntryStatusVoid,
		Actor:     voidedBy,
	})
}

func (p *LedgerEventPublisher) publish(ctx context.Context, ev *LedgerEvent) error {
	ev.EventID = id.GenerateEventID("evt")
	ev.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.EntryID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "request_id", Value: []byte(ev.RequestID)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.EventType, err)
	}

	p.logger.Debug("ledger event published",
		zap.String("event_type", ev.EventType),
		zap.String("event_id", ev.EventID),
		zap.Int64("entry_id", ev.EntryID))
	return nil
}

func (p *LedgerEventPublisher) Close() error {
	return p.writer.Close()
}
