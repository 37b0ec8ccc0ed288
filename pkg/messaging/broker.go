package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Channels the booking subsystem publishes on. Subscribers (UI refresh,
// downstream automations) consume these without the publisher knowing them.
const (
	ChannelBookingCreated     = "booking.created"
	ChannelBookingFailed      = "booking.failed"
	ChannelReservationExpired = "reservation.expired"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
