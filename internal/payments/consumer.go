// Package payments applies the payment collaborator's settlement events to
// slot pricing.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/store"
)

// RoutingKeys lists the events the consumer binds to, mapped to the payment
// status they record.
var RoutingKeys = map[string]string{
	"payment.settled":  "paid",
	"payment.failed":   "failed",
	"payment.refunded": "refunded",
}

func Keys() []string {
	keys := make([]string, 0, len(RoutingKeys))
	for k := range RoutingKeys {
		keys = append(keys, k)
	}
	return keys
}

type Event struct {
	Event   string `json:"event"`
	Version int    `json:"version"`
	Data    struct {
		PaymentID string `json:"payment_id"`
		SlotID    string `json:"slot_id"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

type slotPayments interface {
	SetPaymentStatus(ctx context.Context, id uuid.UUID, status string) (domain.TimeSlot, error)
}

type deliverySource interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

type Consumer struct {
	slots slotPayments
	src   deliverySource
	log   *slog.Logger
}

func NewConsumer(slots slotPayments, src deliverySource, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{slots: slots, src: src, log: log.With(slog.String("component", "payments_consumer"))}
}

// Run handles deliveries until ctx is done or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	msgs, err := c.src.Deliveries(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("payments: delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	log := c.log.With(slog.String("routing_key", d.RoutingKey))

	paymentStatus, known := RoutingKeys[d.RoutingKey]
	if !known {
		_ = d.Ack(false)
		return
	}

	var evt Event
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		log.Warn("payment event unmarshal failed", slog.Any("err", err))
		_ = d.Nack(false, false)
		return
	}
	slotID, err := uuid.Parse(evt.Data.SlotID)
	if err != nil {
		log.Warn("payment event without a valid slot id", slog.String("payment_id", evt.Data.PaymentID))
		_ = d.Ack(false)
		return
	}

	_, err = c.slots.SetPaymentStatus(ctx, slotID, paymentStatus)
	if err != nil {
		var vErr *scheduling.ValidationError
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Warn("payment event for unknown slot", slog.String("slot_id", slotID.String()))
			_ = d.Ack(false)
		case errors.As(err, &vErr):
			log.Warn("payment event rejected", slog.String("slot_id", slotID.String()), slog.Any("err", err))
			_ = d.Ack(false)
		default:
			log.Error("payment status update failed", slog.String("slot_id", slotID.String()), slog.Any("err", err))
			_ = d.Nack(false, true)
		}
		return
	}

	log.Info("payment status recorded",
		slog.String("slot_id", slotID.String()),
		slog.String("payment_id", evt.Data.PaymentID),
		slog.String("payment_status", paymentStatus),
	)
	_ = d.Ack(false)
}
