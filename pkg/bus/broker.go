package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"synapse/pkg/config"
)

const brokerChannel = "synapse:messages"

// brokerTransport carries messages over a Redis pub/sub channel so multiple
// processes can share one bus. Message ordering across destinations is
// whatever the broker provides.
type brokerTransport struct {
	client *redis.Client

	mu     sync.Mutex
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBrokerTransport(cfg config.BusConfig) *brokerTransport {
	return &brokerTransport{
		client: redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.BrokerHost, strconv.Itoa(cfg.BrokerPort)),
			Password: cfg.BrokerPassword,
		}),
	}
}

func (t *brokerTransport) start(ctx context.Context, deliver func(Message)) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to message broker: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	pubsub := t.client.Subscribe(consumeCtx, brokerChannel)

	// Wait for the subscription confirmation so no early publish is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to message broker: %w", err)
	}

	t.mu.Lock()
	t.pubsub = pubsub
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for raw := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			deliver(msg)
		}
	}()

	return nil
}

func (t *brokerTransport) publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}

	if err := t.client.Publish(ctx, brokerChannel, raw).Err(); err != nil {
		return fmt.Errorf("publish message %s: %w", msg.ID, err)
	}

	return nil
}

func (t *brokerTransport) healthy(ctx context.Context) bool {
	return t.client.Ping(ctx).Err() == nil
}

func (t *brokerTransport) queueDepth() int {
	return 0
}

func (t *brokerTransport) kind() string {
	return "broker"
}

func (t *brokerTransport) close() error {
	t.mu.Lock()
	pubsub := t.pubsub
	cancel := t.cancel
	t.mu.Unlock()

	if pubsub != nil {
		_ = pubsub.Close()
	}
	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	return t.client.Close()
}
