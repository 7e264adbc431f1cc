// Package nats is the NATS transport for record events.
package nats

import (
	"context"
	"fmt"
	"time"

	"accounting/internal/events"
	"accounting/internal/log"

	"github.com/nats-io/nats.go"
)

// Config selects the subject and, optionally, a queue group. Members of one
// queue group share the events; without a group every consumer sees all.
type Config struct {
	URL        string
	Subject    string
	QueueGroup string
	Name       string
}

type Bus struct {
	nc      *nats.Conn
	subject string
	queue   string
	logger  *log.Logger
}

var _ events.Bus = (*Bus)(nil)

func Connect(cfg Config, logger *log.Logger) (*Bus, error) {
	logger = log.OrDefault(logger).WithComponent(log.ComponentEvents)

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", log.FieldError, err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &Bus{nc: nc, subject: cfg.Subject, queue: cfg.QueueGroup, logger: logger}, nil
}

// Publish sends e and waits for the server to acknowledge the flush.
func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	body, err := e.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.subject, body); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Consume delivers events to h until ctx is done. Core NATS has no
// redelivery, so handler errors are logged and the event is dropped.
func (b *Bus) Consume(ctx context.Context, h events.Handler) error {
	msgs := make(chan *nats.Msg, 64)

	var (
		sub *nats.Subscription
		err error
	)
	if b.queue != "" {
		sub, err = b.nc.ChanQueueSubscribe(b.subject, b.queue, msgs)
	} else {
		sub, err = b.nc.ChanSubscribe(b.subject, msgs)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	defer sub.Unsubscribe()

	b.logger.InfoContext(ctx, "Started consuming record events", "subject", b.subject, "queue_group", b.queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-msgs:
			e, err := events.FromJSON(m.Data)
			if err != nil {
				b.logger.ErrorContext(ctx, "Dropping undecodable event", log.FieldError, err)
				continue
			}
			if err := h(ctx, e); err != nil {
				b.logger.ErrorContext(ctx, "Event handler failed",
					log.FieldEventKind, string(e.Kind),
					log.FieldUserID, e.UserID,
					log.FieldError, err)
			}
		}
	}
}

// Close drains subscriptions and closes the connection.
func (b *Bus) Close() error {
	if b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
