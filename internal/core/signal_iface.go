package core

import "errors"

// Frame is an encoded outbound event.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts a client messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: a full outbound queue returns ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
