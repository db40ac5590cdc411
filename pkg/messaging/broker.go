package messaging

import "context"

// Publisher is the side of a broker the outbox processor needs. message is
// JSON-encoded; pass json.RawMessage to publish a payload as is.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Broker delivers published messages to every live subscriber of a channel.
// Delivery is at most once; durability comes from the outbox table.
type Broker interface {
	Publisher
	// Subscribe returns raw payloads until ctx is done or the broker closes.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Handler processes one payload received on a channel.
type Handler func(ctx context.Context, payload []byte) error
