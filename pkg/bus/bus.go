package bus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"synapse/pkg/config"
)

var (
	// ErrRequestTimeout is returned by Request when no correlated reply
	// arrives within the timeout.
	ErrRequestTimeout = errors.New("bus: request timed out")

	// ErrBusClosed is returned for operations after Close.
	ErrBusClosed = errors.New("bus: closed")

	// ErrNotStarted is returned when publishing before Start.
	ErrNotStarted = errors.New("bus: not started")
)

const requestSource = "coordinator"

// Handler consumes one delivered message.
type Handler func(Message)

type handlerEntry struct {
	id      uint64
	fn      Handler
	oneShot bool
}

// Bus routes typed messages between named endpoints. Handlers for a type
// fire in registration order; delivery runs on a single dispatch goroutine
// so the in-process transport preserves enqueue order.
type Bus struct {
	cfg       config.BusConfig
	log       *slog.Logger
	transport transport

	mu            sync.Mutex
	subscribers   map[string][]handlerEntry
	nextHandlerID uint64
	started       bool

	done      chan struct{}
	closeOnce sync.Once
}

// New builds a bus; the transport is selected from config but not started.
func New(cfg config.BusConfig, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}

	b := &Bus{
		cfg:         cfg,
		log:         log.With("component", "bus"),
		subscribers: make(map[string][]handlerEntry),
		done:        make(chan struct{}),
	}

	if cfg.UseExternalBroker {
		b.transport = newBrokerTransport(cfg)
	} else {
		b.transport = newMemoryTransport(cfg.QueueSize)
	}

	return b
}

// Start connects the transport and launches the dispatch loop. For the
// broker transport an unreachable broker fails fast with a connectivity
// error. First call wins; calling Start twice is undefined.
func (b *Bus) Start(ctx context.Context) error {
	if err := b.transport.start(ctx, b.dispatch); err != nil {
		return err
	}

	b.mu.Lock()
	b.started = true
	b.mu.Unlock()

	b.log.Info("Message bus started", "transport", b.transport.kind())
	return nil
}

// Publish enqueues the message for all current subscribers of its type and
// returns the message id. It never waits for a subscriber to consume.
func (b *Bus) Publish(ctx context.Context, msg Message) (string, error) {
	select {
	case <-b.done:
		return "", ErrBusClosed
	default:
	}

	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return "", ErrNotStarted
	}

	if err := b.transport.publish(ctx, msg); err != nil {
		return "", err
	}

	b.log.Debug("Message published", "message_id", msg.ID, "message_type", msg.Type, "source", msg.Source, "destination", msg.Destination)
	return msg.ID, nil
}

// Broadcast publishes to the reserved broadcast destination so every
// subscriber of the type receives it.
func (b *Bus) Broadcast(ctx context.Context, messageType string, payload map[string]any) (string, error) {
	return b.Publish(ctx, NewMessage("system", BroadcastDestination, messageType, payload))
}

// Subscribe registers a handler for a message type and returns a cancel
// function that removes exactly that handler.
func (b *Bus) Subscribe(messageType string, handler Handler) func() {
	return b.subscribe(messageType, handler, false)
}

func (b *Bus) subscribe(messageType string, handler Handler, oneShot bool) func() {
	b.mu.Lock()
	b.nextHandlerID++
	id := b.nextHandlerID
	b.subscribers[messageType] = append(b.subscribers[messageType], handlerEntry{id: id, fn: handler, oneShot: oneShot})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.removeHandler(messageType, id) })
	}
}

func (b *Bus) removeHandler(messageType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subscribers[messageType]
	for i, entry := range entries {
		if entry.id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}

	if len(entries) == 0 {
		delete(b.subscribers, messageType)
		return
	}
	b.subscribers[messageType] = entries
}

// Unsubscribe removes every handler registered for the type.
func (b *Bus) Unsubscribe(messageType string) {
	b.mu.Lock()
	delete(b.subscribers, messageType)
	b.mu.Unlock()
}

// SubscriberCount reports how many handlers are registered for a type.
func (b *Bus) SubscriberCount(messageType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[messageType])
}

// Request sends one message to a module and waits for the correlated reply.
//
// A one-shot subscription keyed by the reply type is registered before the
// publish and removed on every exit path, so a late reply after timeout is
// silently dropped. Exactly one reply is consumed.
func (b *Bus) Request(ctx context.Context, moduleName string, messageType string, payload map[string]any, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = time.Duration(b.cfg.RequestTimeoutSeconds) * time.Second
	}

	msg := NewMessage(requestSource, moduleName, messageType, payload)

	replyCh := make(chan Message, 1)
	cancel := b.subscribe(ReplyType(msg.ID), func(reply Message) {
		select {
		case replyCh <- reply:
		default:
		}
	}, true)

	if _, err := b.Publish(ctx, msg); err != nil {
		cancel()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.Payload, nil
	case <-timer.C:
		cancel()
		b.log.Warn("Request timed out", "module", moduleName, "message_type", messageType, "message_id", msg.ID)
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-b.done:
		cancel()
		return nil, ErrBusClosed
	}
}

// dispatch delivers one message to all subscribers of its type in
// registration order. One-shot handlers are unregistered before they fire
// so a second delivery finds no subscriber. A panicking handler is
// recovered and logged without affecting siblings.
func (b *Bus) dispatch(msg Message) {
	b.mu.Lock()
	entries := b.subscribers[msg.Type]
	fire := make([]handlerEntry, len(entries))
	copy(fire, entries)

	kept := entries[:0]
	for _, entry := range entries {
		if !entry.oneShot {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(b.subscribers, msg.Type)
	} else {
		b.subscribers[msg.Type] = kept
	}
	b.mu.Unlock()

	for _, entry := range fire {
		b.invoke(entry, msg)
	}
}

func (b *Bus) invoke(entry handlerEntry, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Message handler panicked", "message_type", msg.Type, "message_id", msg.ID, "panic", r)
		}
	}()

	entry.fn(msg)
}

// Healthy reports transport liveness: dispatch loop alive for the
// in-process transport, connection ping for the broker transport.
func (b *Bus) Healthy(ctx context.Context) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	return started && b.transport.healthy(ctx)
}

// Metrics reports a snapshot of bus state for status queries.
func (b *Bus) Metrics() map[string]any {
	b.mu.Lock()
	counts := make(map[string]int, len(b.subscribers))
	for messageType, entries := range b.subscribers {
		counts[messageType] = len(entries)
	}
	started := b.started
	b.mu.Unlock()

	return map[string]any{
		"running":     started && b.transport.healthy(context.Background()),
		"transport":   b.transport.kind(),
		"queue_depth": b.transport.queueDepth(),
		"subscribers": counts,
	}
}

// Close stops the dispatch loop, awaits its termination, and closes the
// transport. Safe to call more than once; later calls are no-ops.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		if err := b.transport.close(); err != nil {
			b.log.Warn("Transport close failed", "error", err)
		}
		b.log.Info("Message bus stopped")
	})
}
