package bus

import (
	"context"
	"sync"
)

const defaultQueueSize = 256

// transport moves published messages to the dispatch callback. The two
// implementations are behaviorally equivalent from the caller's side; only
// ordering across destinations differs (the broker gives whatever ordering
// the broker gives).
type transport interface {
	start(ctx context.Context, deliver func(Message)) error
	publish(ctx context.Context, msg Message) error
	healthy(ctx context.Context) bool
	queueDepth() int
	kind() string
	close() error
}

// memoryTransport is the single-process default: a buffered queue drained
// in strict enqueue order by one background goroutine.
type memoryTransport struct {
	queue chan Message
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool
}

func newMemoryTransport(queueSize int) *memoryTransport {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &memoryTransport{
		queue: make(chan Message, queueSize),
		done:  make(chan struct{}),
	}
}

func (t *memoryTransport) start(_ context.Context, deliver func(Message)) error {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-t.done:
				return
			case msg := <-t.queue:
				deliver(msg)
			}
		}
	}()

	return nil
}

func (t *memoryTransport) publish(ctx context.Context, msg Message) error {
	select {
	case <-t.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	case t.queue <- msg:
		return nil
	}
}

func (t *memoryTransport) healthy(_ context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return false
	}

	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *memoryTransport) queueDepth() int {
	return len(t.queue)
}

func (t *memoryTransport) kind() string {
	return "memory"
}

func (t *memoryTransport) close() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	close(t.done)
	t.wg.Wait()
	return nil
}
