package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var received []PaymentConfirmedEvent
	bus.Subscribe(EventTypePaymentConfirmed, func(ctx context.Context, event Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event.(PaymentConfirmedEvent))
	})

	event := PaymentConfirmedEvent{
		PaymentID:  42,
		OrderID:    7,
		Amount:     5000,
		ApprovedAt: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
	}
	bus.Emit(context.Background(), event)
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, event, received[0])
}

func TestBus_EmitOnlyMatchingType(t *testing.T) {
	bus := NewBus()

	called := make(chan EventType, 2)
	bus.Subscribe(EventTypePaymentCancelled, func(ctx context.Context, event Event) {
		called <- event.Type()
	})

	bus.Emit(context.Background(), PaymentConfirmedEvent{PaymentID: 1})
	bus.Emit(context.Background(), PaymentCancelledEvent{PaymentID: 1})
	bus.Wait()

	close(called)
	var types []EventType
	for et := range called {
		types = append(types, et)
	}
	assert.Equal(t, []EventType{EventTypePaymentCancelled}, types)
}

func TestBus_HandlerPanicIsRecovered(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(EventTypeSettlementPaid, func(ctx context.Context, event Event) {
		panic("boom")
	})
	bus.Subscribe(EventTypeSettlementPaid, func(ctx context.Context, event Event) {
		wg.Done()
	})

	assert.NotPanics(t, func() {
		bus.Emit(context.Background(), SettlementPaidEvent{SettlementID: 1})
		bus.Wait()
	})
	wg.Wait()
}
