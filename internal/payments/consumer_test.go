package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"icetime/backend/internal/domain"
	"icetime/backend/internal/service/scheduling"
	"icetime/backend/internal/store"
)

type ackRecord struct {
	acked   bool
	nacked  bool
	requeue bool
}

type fakeAck struct {
	mu  sync.Mutex
	got ackRecord
}

func (f *fakeAck) Ack(uint64, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got.acked = true
	return nil
}

func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got.nacked = true
	f.got.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(_ uint64, requeue bool) error {
	return f.Nack(0, false, requeue)
}

func (f *fakeAck) record() ackRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got
}

type fakeSlots struct {
	mu     sync.Mutex
	err    error
	calls  int
	id     uuid.UUID
	status string
}

func (f *fakeSlots) SetPaymentStatus(_ context.Context, id uuid.UUID, status string) (domain.TimeSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.id = id
	f.status = status
	if f.err != nil {
		return domain.TimeSlot{}, f.err
	}
	return domain.TimeSlot{ID: id}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func delivery(ack amqp.Acknowledger, key, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, RoutingKey: key, Body: []byte(body), DeliveryTag: 1}
}

const slotID = "2b0f1d0e-8c3a-4d8e-9a51-3f0f5d1c2a77"

func settledBody(id string) string {
	return `{"event":"payment.settled","version":1,"data":{"payment_id":"pay_1","slot_id":"` + id + `","amount":27000,"currency":"USD"}}`
}

func TestHandle_MapsRoutingKeyToStatus(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "payment.settled", want: "paid"},
		{key: "payment.failed", want: "failed"},
		{key: "payment.refunded", want: "refunded"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			slots := &fakeSlots{}
			ack := &fakeAck{}
			c := NewConsumer(slots, nil, discardLogger())

			c.handle(context.Background(), delivery(ack, tt.key, settledBody(slotID)))

			if slots.status != tt.want {
				t.Fatalf("status = %q, want %q", slots.status, tt.want)
			}
			if slots.id.String() != slotID {
				t.Fatalf("slot id = %s, want %s", slots.id, slotID)
			}
			if got := ack.record(); !got.acked || got.nacked {
				t.Fatalf("ack = %+v, want acked", got)
			}
		})
	}
}

func TestHandle_AckPolicy(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		body      string
		err       error
		want      ackRecord
		wantCalls int
	}{
		{name: "unknown routing key", key: "payment.created", body: settledBody(slotID), want: ackRecord{acked: true}},
		{name: "bad json", key: "payment.settled", body: "{", want: ackRecord{nacked: true}},
		{name: "bad slot id", key: "payment.settled", body: settledBody("nope"), want: ackRecord{acked: true}},
		{name: "unknown slot", key: "payment.settled", body: settledBody(slotID), err: store.ErrNotFound, want: ackRecord{acked: true}, wantCalls: 1},
		{name: "validation", key: "payment.settled", body: settledBody(slotID), err: scheduling.NewValidationError("bad"), want: ackRecord{acked: true}, wantCalls: 1},
		{name: "transient", key: "payment.settled", body: settledBody(slotID), err: errors.New("db down"), want: ackRecord{nacked: true, requeue: true}, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := &fakeSlots{err: tt.err}
			ack := &fakeAck{}
			c := NewConsumer(slots, nil, discardLogger())

			c.handle(context.Background(), delivery(ack, tt.key, tt.body))

			if got := ack.record(); got != tt.want {
				t.Fatalf("ack = %+v, want %+v", got, tt.want)
			}
			if slots.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", slots.calls, tt.wantCalls)
			}
		})
	}
}

type chanSource struct {
	ch chan amqp.Delivery
}

func (s chanSource) Deliveries(context.Context) (<-chan amqp.Delivery, error) {
	return s.ch, nil
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	src := chanSource{ch: make(chan amqp.Delivery, 1)}
	slots := &fakeSlots{}
	ack := &fakeAck{}
	src.ch <- delivery(ack, "payment.settled", settledBody(slotID))
	close(src.ch)

	err := NewConsumer(slots, src, discardLogger()).Run(context.Background())
	if err == nil {
		t.Fatalf("Run error = nil, want closed channel error")
	}
	if !ack.record().acked {
		t.Fatalf("queued delivery was not handled")
	}
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	src := chanSource{ch: make(chan amqp.Delivery)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewConsumer(&fakeSlots{}, src, discardLogger()).Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
