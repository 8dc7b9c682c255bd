package messaging

import (
	"context"
	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OrderSubmitter accepts decoded orders; services.Dispatcher satisfies it.
type OrderSubmitter interface {
	Submit(ctx context.Context, o domain.Order) (int, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OrderConsumer reads new orders from a Kafka topic and submits them for
// dispatch. Malformed or rejected messages are logged and committed so
// they never block the partition.
type OrderConsumer struct {
	reader messageReader
	submit OrderSubmitter
}

func NewOrderConsumer(brokers []string, groupID, topic string, submit OrderSubmitter) *OrderConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MaxWait:        time.Second,
		CommitInterval: 0,
	})
	return &OrderConsumer{reader: reader, submit: submit}
}

// Run consumes until ctx is cancelled or the reader fails.
func (c *OrderConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("order consumer: fetch: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("order consumer: commit offset %d: %w", msg.Offset, err)
		}
	}
}

func (c *OrderConsumer) Close() error {
	return c.reader.Close()
}

func (c *OrderConsumer) handle(ctx context.Context, msg kafka.Message) {
	log := obs.L().With(
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	o, err := DecodeOrderMessage(msg.Value)
	if err != nil {
		log.Warn("drop malformed order message", zap.Error(err))
		return
	}

	p, err := c.submit.Submit(ctx, o)
	if err != nil {
		log.Warn("order rejected", zap.String("order_id", o.ID), zap.Error(err))
		return
	}
	log.Debug("order queued", zap.String("order_id", o.ID), zap.Int("priority", p))
}

// DecodeOrderMessage parses a message value in the HTTP intake format.
func DecodeOrderMessage(value []byte) (domain.Order, error) {
	if len(value) == 0 {
		return domain.Order{}, errors.New("decode order message: empty value")
	}

	var req dto.CreateOrderRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return domain.Order{}, fmt.Errorf("decode order message: %w", err)
	}

	o, err := req.ToDomain()
	if err != nil {
		return domain.Order{}, fmt.Errorf("decode order message: %w", err)
	}
	return o, nil
}
