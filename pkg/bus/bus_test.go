package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"synapse/pkg/config"
)

func newStartedBus(t *testing.T) *Bus {
	t.Helper()

	b := New(config.BusConfig{QueueSize: 16, RequestTimeoutSeconds: 1}, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(b.Close)

	return b
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := newStartedBus(t)

	received := make(chan Message, 1)
	b.Subscribe("process_text", func(msg Message) { received <- msg })

	msg := NewMessage("coordinator", "text_understander", "process_text", map[string]any{"input": "hello"})
	id, err := b.Publish(context.Background(), msg)
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if id != msg.ID {
		t.Fatalf("returned id = %q, want %q", id, msg.ID)
	}

	select {
	case got := <-received:
		if got.Payload["input"] != "hello" {
			t.Fatalf("payload input = %v, want %q", got.Payload["input"], "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}
}

func TestHandlersFireInRegistrationOrder(t *testing.T) {
	b := newStartedBus(t)

	order := make(chan int, 3)
	b.Subscribe("ordered", func(Message) { order <- 1 })
	b.Subscribe("ordered", func(Message) { order <- 2 })
	b.Subscribe("ordered", func(Message) { order <- 3 })

	if _, err := b.Broadcast(context.Background(), "ordered", nil); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}

	for want := 1; want <= 3; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("handler fired out of order: got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("handler %d did not fire", want)
		}
	}
}

func TestPanickingHandlerDoesNotBlockSiblings(t *testing.T) {
	b := newStartedBus(t)

	survived := make(chan struct{}, 1)
	b.Subscribe("risky", func(Message) { panic("boom") })
	b.Subscribe("risky", func(Message) { survived <- struct{}{} })

	if _, err := b.Broadcast(context.Background(), "risky", nil); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}

	select {
	case <-survived:
	case <-time.After(time.Second):
		t.Fatal("second handler did not fire after sibling panic")
	}
}

func TestRequestRoundTrip(t *testing.T) {
	b := newStartedBus(t)

	b.Subscribe("process_text", func(msg Message) {
		if !msg.AddressedTo("text_understander") {
			return
		}
		_, _ = b.Publish(context.Background(), Reply(msg, "text_understander", map[string]any{"ok": true}))
	})

	payload, err := b.Request(context.Background(), "text_understander", "process_text", map[string]any{"input": "hi"}, time.Second)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if payload["ok"] != true {
		t.Fatalf("payload ok = %v, want true", payload["ok"])
	}
}

func TestRequestTimeoutRemovesOneShotSubscription(t *testing.T) {
	b := newStartedBus(t)

	// Capture the inbound request so a reply can arrive late.
	inbound := make(chan Message, 1)
	b.Subscribe("process_text", func(msg Message) { inbound <- msg })

	start := time.Now()
	_, err := b.Request(context.Background(), "silent_module", "process_text", nil, 100*time.Millisecond)
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("error = %v, want ErrRequestTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("request returned before the timeout: %v", elapsed)
	}

	var req Message
	select {
	case req = <-inbound:
	case <-time.After(time.Second):
		t.Fatal("request message was not delivered")
	}

	if count := b.SubscriberCount(ReplyType(req.ID)); count != 0 {
		t.Fatalf("reply subscriber count = %d, want 0 after timeout", count)
	}

	// A late reply must be silently dropped.
	if _, err := b.Publish(context.Background(), Reply(req, "silent_module", map[string]any{"late": true})); err != nil {
		t.Fatalf("late reply publish error: %v", err)
	}
}

func TestRequestConsumesExactlyOneReply(t *testing.T) {
	b := newStartedBus(t)

	b.Subscribe("echo", func(msg Message) {
		// Answer twice; only the first reply may be consumed.
		_, _ = b.Publish(context.Background(), Reply(msg, "echo_module", map[string]any{"n": 1}))
		_, _ = b.Publish(context.Background(), Reply(msg, "echo_module", map[string]any{"n": 2}))
	})

	payload, err := b.Request(context.Background(), "echo_module", "echo", nil, time.Second)
	if err != nil {
		t.Fatalf("Request error: %v", err)
	}
	if payload["n"] != 1 {
		t.Fatalf("payload n = %v, want 1", payload["n"])
	}
}

func TestBroadcastReachesEverySubscriber(t *testing.T) {
	b := newStartedBus(t)

	a := make(chan Message, 1)
	c := make(chan Message, 1)
	b.Subscribe("system_notice", func(msg Message) { a <- msg })
	b.Subscribe("system_notice", func(msg Message) { c <- msg })

	if _, err := b.Broadcast(context.Background(), "system_notice", map[string]any{"text": "hello"}); err != nil {
		t.Fatalf("Broadcast error: %v", err)
	}

	for _, ch := range []chan Message{a, c} {
		select {
		case msg := <-ch:
			if msg.Destination != BroadcastDestination {
				t.Fatalf("destination = %q, want %q", msg.Destination, BroadcastDestination)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive broadcast")
		}
	}
}

func TestSubscribeCancelRemovesSingleHandler(t *testing.T) {
	b := newStartedBus(t)

	cancel := b.Subscribe("topic", func(Message) {})
	b.Subscribe("topic", func(Message) {})

	cancel()
	cancel() // second call is a no-op

	if count := b.SubscriberCount("topic"); count != 1 {
		t.Fatalf("subscriber count = %d, want 1", count)
	}
}

func TestUnsubscribeClearsAllHandlers(t *testing.T) {
	b := newStartedBus(t)

	b.Subscribe("topic", func(Message) {})
	b.Subscribe("topic", func(Message) {})

	b.Unsubscribe("topic")

	if count := b.SubscriberCount("topic"); count != 0 {
		t.Fatalf("subscriber count = %d, want 0", count)
	}
}

func TestPublishBeforeStartFails(t *testing.T) {
	b := New(config.BusConfig{}, nil)
	t.Cleanup(b.Close)

	if _, err := b.Publish(context.Background(), NewMessage("a", "b", "t", nil)); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("error = %v, want ErrNotStarted", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := New(config.BusConfig{}, nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	b.Close()
	b.Close()

	if _, err := b.Publish(context.Background(), NewMessage("a", "b", "t", nil)); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("error = %v, want ErrBusClosed", err)
	}
	if b.Healthy(context.Background()) {
		t.Fatal("bus should be unhealthy after close")
	}
}

func TestHealthyReflectsDispatchLoop(t *testing.T) {
	b := New(config.BusConfig{}, nil)

	if b.Healthy(context.Background()) {
		t.Fatal("bus should be unhealthy before start")
	}

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if !b.Healthy(context.Background()) {
		t.Fatal("bus should be healthy after start")
	}

	b.Close()
	if b.Healthy(context.Background()) {
		t.Fatal("bus should be unhealthy after close")
	}
}

func TestMetricsSnapshot(t *testing.T) {
	b := newStartedBus(t)

	b.Subscribe("process_text", func(Message) {})
	b.Subscribe("process_text", func(Message) {})

	metrics := b.Metrics()
	if metrics["transport"] != "memory" {
		t.Fatalf("transport = %v, want %q", metrics["transport"], "memory")
	}

	counts, ok := metrics["subscribers"].(map[string]int)
	if !ok {
		t.Fatalf("subscribers has unexpected type %T", metrics["subscribers"])
	}
	if counts["process_text"] != 2 {
		t.Fatalf("process_text subscriber count = %d, want 2", counts["process_text"])
	}
}
