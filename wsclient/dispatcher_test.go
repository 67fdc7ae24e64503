package wsclient

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestDispatcherIsolatesFailingHandler(t *testing.T) {
	var reported []error
	dispatcher := NewDispatcher(func(err error) { reported = append(reported, err) }, zap.NewNop())

	var first, third []EventKind
	dispatcher.Subscribe(func(event Event) error {
		first = append(first, event.Kind)
		return nil
	})
	failing := dispatcher.Subscribe(func(event Event) error {
		return errors.New("store rejected update")
	})
	dispatcher.Subscribe(func(event Event) error {
		third = append(third, event.Kind)
		return nil
	})

	failures := dispatcher.Dispatch(Event{Kind: EventMessage, Message: &InboundMessage{Payload: []byte("x")}})
	if failures != 1 {
		t.Fatalf("expected 1 failure, got %d", failures)
	}
	if len(first) != 1 || len(third) != 1 {
		t.Fatalf("healthy handlers missed the event: first=%v third=%v", first, third)
	}
	if len(reported) != 1 {
		t.Fatalf("expected exactly one report, got %d", len(reported))
	}

	var failure *HandlerFailure
	if !errors.As(reported[0], &failure) {
		t.Fatalf("expected *HandlerFailure, got %T", reported[0])
	}
	if failure.Subscription != failing || failure.Kind != EventMessage {
		t.Fatalf("unexpected failure %+v", failure)
	}
	if !errors.Is(reported[0], ErrHandler) {
		t.Fatalf("expected HandlerError code")
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	var reported []error
	dispatcher := NewDispatcher(func(err error) { reported = append(reported, err) }, nil)

	delivered := false
	dispatcher.Subscribe(HandlerFunc(func(Event) { panic("handler bug") }))
	dispatcher.Subscribe(HandlerFunc(func(Event) { delivered = true }))

	if failures := dispatcher.Dispatch(Event{Kind: EventConnected}); failures != 1 {
		t.Fatalf("expected 1 failure, got %d", failures)
	}
	if !delivered {
		t.Fatalf("handler after the panicking one was skipped")
	}
	if len(reported) != 1 || !errors.Is(reported[0], ErrHandler) {
		t.Fatalf("unexpected reports %v", reported)
	}
}

func TestDispatcherSurvivesPanickingReporter(t *testing.T) {
	dispatcher := NewDispatcher(func(error) { panic("reporter bug") }, nil)
	dispatcher.Subscribe(func(Event) error { return errors.New("fail") })
	if failures := dispatcher.Dispatch(Event{Kind: EventGaveUp}); failures != 1 {
		t.Fatalf("expected 1 failure, got %d", failures)
	}
}

func TestDispatcherOrderAndUnsubscribe(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil)
	var order []int
	subscriptions := make([]Subscription, 0, 3)
	for i := 1; i <= 3; i++ {
		index := i
		subscriptions = append(subscriptions, dispatcher.Subscribe(HandlerFunc(func(Event) {
			order = append(order, index)
		})))
	}
	dispatcher.Dispatch(Event{Kind: EventConnected})

	if !dispatcher.Unsubscribe(subscriptions[1]) {
		t.Fatalf("expected unsubscribe to succeed")
	}
	if dispatcher.Unsubscribe(subscriptions[1]) {
		t.Fatalf("second unsubscribe must report false")
	}
	if dispatcher.Unsubscribe(Subscription{}) {
		t.Fatalf("zero subscription must report false")
	}
	dispatcher.Dispatch(Event{Kind: EventConnected})

	want := []int{1, 2, 3, 1, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if dispatcher.Len() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", dispatcher.Len())
	}
}

func TestDispatcherNilHandler(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil)
	if subscription := dispatcher.Subscribe(nil); subscription.Valid() {
		t.Fatalf("nil handler must not register")
	}
	if dispatcher.Len() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestDispatcherMutationDuringDelivery(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil)
	var calls []string
	var added bool
	var self Subscription
	self = dispatcher.Subscribe(HandlerFunc(func(Event) {
		calls = append(calls, "remover")
		dispatcher.Unsubscribe(self)
		if !added {
			added = true
			dispatcher.Subscribe(HandlerFunc(func(Event) { calls = append(calls, "late") }))
		}
	}))
	dispatcher.Subscribe(HandlerFunc(func(Event) { calls = append(calls, "steady") }))

	dispatcher.Dispatch(Event{Kind: EventMessage})
	if len(calls) != 2 || calls[0] != "remover" || calls[1] != "steady" {
		t.Fatalf("first dispatch calls = %v", calls)
	}

	calls = nil
	dispatcher.Dispatch(Event{Kind: EventMessage})
	if len(calls) != 2 || calls[0] != "steady" || calls[1] != "late" {
		t.Fatalf("second dispatch calls = %v", calls)
	}
}

func TestDispatcherConcurrentSubscribe(t *testing.T) {
	dispatcher := NewDispatcher(nil, nil)
	var group sync.WaitGroup
	for i := 0; i < 16; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			subscription := dispatcher.Subscribe(func(Event) error { return nil })
			dispatcher.Dispatch(Event{Kind: EventMessage})
			dispatcher.Unsubscribe(subscription)
		}()
	}
	group.Wait()
	if dispatcher.Len() != 0 {
		t.Fatalf("expected all subscribers removed, got %d", dispatcher.Len())
	}
}
