package core

import "context"

// Frame is a raw encoded envelope.
type Frame []byte

// SignalConnection abstracts a relay-server side client transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// RelayChannel carries envelopes from a peer to the relay. Delivery is best effort.
type RelayChannel interface {
	Send(ctx context.Context, env Envelope) error
}

// RelayFunc adapts a function to RelayChannel.
type RelayFunc func(ctx context.Context, env Envelope) error

func (f RelayFunc) Send(ctx context.Context, env Envelope) error { return f(ctx, env) }
