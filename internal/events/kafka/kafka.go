// Package kafka is the Kafka transport for record events.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"accounting/internal/events"
	"accounting/internal/log"

	"github.com/segmentio/kafka-go"
)

// Config selects brokers, topic and consumer group. Consumers in one group
// share the topic's partitions; give each process its own group to have it
// see every event.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Bus struct {
	cfg    Config
	writer *kafka.Writer
	logger *log.Logger

	mu     sync.Mutex
	reader *kafka.Reader
}

var _ events.Bus = (*Bus)(nil)

func New(cfg Config, logger *log.Logger) (*Bus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: no topic configured")
	}

	return &Bus{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: log.OrDefault(logger).WithComponent(log.ComponentEvents),
	}, nil
}

// Publish writes e keyed by user id so one user's events stay in order.
func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.UserID),
		Value: body,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(e.Kind)},
		},
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("can't send to kafka: %w", err)
	}
	return nil
}

func (b *Bus) readerFor() *kafka.Reader {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reader == nil {
		b.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     b.cfg.Brokers,
			Topic:       b.cfg.Topic,
			GroupID:     b.cfg.GroupID,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWait:     time.Second,
		})
	}
	return b.reader
}

// Consume delivers events to h until ctx is done. Offsets are committed
// after the handler succeeds.
func (b *Bus) Consume(ctx context.Context, h events.Handler) error {
	if b.cfg.GroupID == "" {
		return errors.New("kafka: consuming requires a group id")
	}
	r := b.readerFor()

	b.logger.InfoContext(ctx, "Started consuming record events", "topic", b.cfg.Topic, "group", b.cfg.GroupID)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		e, err := events.FromJSON(m.Value)
		if err != nil {
			b.logger.ErrorContext(ctx, "Dropping undecodable event", log.FieldError, err, "offset", m.Offset)
		} else if err := h(ctx, e); err != nil {
			b.logger.ErrorContext(ctx, "Event handler failed",
				log.FieldEventKind, string(e.Kind),
				log.FieldUserID, e.UserID,
				log.FieldError, err)
			continue
		}

		if err := r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			b.logger.WarnContext(ctx, "Commit failed", log.FieldError, err, "offset", m.Offset)
		}
	}
}

func (b *Bus) Close() error {
	var errs []error
	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("writer: %w", err))
	}
	b.mu.Lock()
	if b.reader != nil {
		if err := b.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("reader: %w", err))
		}
	}
	b.mu.Unlock()
	return errors.Join(errs...)
}
