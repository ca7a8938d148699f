// Package messaging ingests ledger events from Kafka into the movement and reset ledgers.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MovementAppender appends to the movement ledger.
type MovementAppender interface {
	AppendMovement(ctx context.Context, m *entity.Movement) error
}

// ResetAppender appends to the reset ledger.
type ResetAppender interface {
	AppendReset(ctx context.Context, r *entity.ResetEvent) error
}

// Config selects brokers and topics.
type Config struct {
	Brokers        []string
	GroupID        string
	MovementsTopic string
	ResetsTopic    string
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
}

// NewReader builds a consumer-group reader subscribed to both ledger topics.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: []string{cfg.MovementsTopic, cfg.ResetsTopic},
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
	})
}

// Consumer reads ledger events and appends them. Offsets are committed only
// after the append succeeded, was a duplicate, or was rejected as invalid;
// anything else is retried from the same offset.
type Consumer struct {
	reader         Reader
	movements      MovementAppender
	resets         ResetAppender
	movementsTopic string
	resetsTopic    string
	retryDelay     time.Duration
	log            *logger.Logger
}

// NewConsumer creates a consumer over reader.
func NewConsumer(reader Reader, movements MovementAppender, resets ResetAppender, cfg Config, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.Default()
	}
	return &Consumer{
		reader:         reader,
		movements:      movements,
		resets:         resets,
		movementsTopic: cfg.MovementsTopic,
		resetsTopic:    cfg.ResetsTopic,
		retryDelay:     time.Second,
		log:            log.WithComponent("kafka-consumer"),
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Infow("starting ledger consumer", "movements_topic", c.movementsTopic, "resets_topic", c.resetsTopic)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("stopping ledger consumer")
				return nil
			}
			c.log.Errorw("fetch kafka message", "error", err)
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		for {
			err = c.Handle(ctx, msg)
			if err == nil {
				break
			}
			c.log.Errorw("append ledger event, will retry",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			if !c.sleep(ctx) {
				return nil
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Errorw("commit kafka offset", "offset", msg.Offset, "error", err)
		}
	}
}

// Handle decodes and appends one message. It returns an error only for
// failures worth retrying.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	trace := appctx.NewTraceContext()
	trace.RequestID = deliveryKey(msg)
	ctx = appctx.WithTrace(logger.WithLogger(ctx, c.log), trace)

	var err error
	switch msg.Topic {
	case c.movementsTopic:
		err = c.handleMovement(ctx, msg)
	case c.resetsTopic:
		err = c.handleReset(ctx, msg)
	default:
		c.log.Warnw("message from unknown topic skipped", "topic", msg.Topic)
		return nil
	}

	var decodeErr *decodeError
	switch {
	case err == nil:
		return nil
	case apperror.IsDuplicate(err):
		c.log.Debugw("duplicate ledger event skipped", "topic", msg.Topic, "offset", msg.Offset)
		return nil
	case apperror.IsValidation(err), errors.As(err, &decodeErr):
		c.log.Warnw("invalid ledger event dropped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	default:
		return err
	}
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode event: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (c *Consumer) handleMovement(ctx context.Context, msg kafka.Message) error {
	var m entity.Movement
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return &decodeError{err}
	}
	m.ID, m.Sequence, m.RecordedAt = id.ID{}, 0, time.Time{}
	if m.IdempotencyKey == nil {
		key := deliveryKey(msg)
		m.IdempotencyKey = &key
	}
	return c.movements.AppendMovement(ctx, &m)
}

func (c *Consumer) handleReset(ctx context.Context, msg kafka.Message) error {
	var r entity.ResetEvent
	if err := json.Unmarshal(msg.Value, &r); err != nil {
		return &decodeError{err}
	}
	r.ID, r.Sequence, r.RecordedAt = id.ID{}, 0, time.Time{}
	if r.IdempotencyKey == nil {
		key := deliveryKey(msg)
		r.IdempotencyKey = &key
	}
	return c.resets.AppendReset(ctx, &r)
}

// deliveryKey identifies a message by its log position, so a redelivery
// after a lost commit is recognised as a duplicate.
func deliveryKey(msg kafka.Message) string {
	return fmt.Sprintf("kafka:%s:%d:%d", msg.Topic, msg.Partition, msg.Offset)
}

func (c *Consumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
