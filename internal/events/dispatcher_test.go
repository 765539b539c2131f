package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherInvokesAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	fail := errors.New("boom")

	d.Subscribe(EventBookingCreated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return fail
	})
	d.Subscribe(EventBookingCreated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventRefundResolved, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventBookingCreated, BookingID: "b1"})
	if !errors.Is(err, fail) {
		t.Fatalf("expected joined handler error, got %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestDispatcherWithoutListeners(t *testing.T) {
	d := NewInMemoryDispatcher()
	if err := d.Publish(context.Background(), Event{Type: EventBookingStatusChanged}); err != nil {
		t.Fatalf("publish without listeners: %v", err)
	}
}
