package bus

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastDestination is the reserved destination delivered to every
// subscriber of a type regardless of addressing.
const BroadcastDestination = "broadcast"

const replyTypePrefix = "response:"

// Message is the immutable unit of communication on the bus. Once
// constructed it is never mutated; the ID is unique for the process
// lifetime.
type Message struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Priority    int            `json:"priority"`
}

// NewMessage constructs a message with a fresh id and UTC timestamp.
func NewMessage(source string, destination string, messageType string, payload map[string]any) Message {
	return Message{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: destination,
		Type:        messageType,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
		Priority:    1,
	}
}

// ReplyType is the correlation message type that answers the message with
// the given id.
func ReplyType(messageID string) string {
	return replyTypePrefix + messageID
}

// Reply constructs the correlated answer to an inbound message, addressed
// back at its source.
func Reply(to Message, from string, payload map[string]any) Message {
	return NewMessage(from, to.Source, ReplyType(to.ID), payload)
}

// AddressedTo reports whether a message should be handled by the named
// endpoint: either addressed directly or broadcast.
func (m Message) AddressedTo(name string) bool {
	return m.Destination == name || m.Destination == BroadcastDestination
}
