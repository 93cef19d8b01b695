package transport

import (
	"net"
)

// DatagramHandler processes one received datagram. data is only valid for
// the duration of the call.
type DatagramHandler func(data []byte, addr net.Addr)

// Transport defines the datagram transport the voice session runs over.
// This abstraction lets tests substitute an in-memory transport.
type Transport interface {
	// Send sends one datagram to addr.
	Send(data []byte, addr net.Addr) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address the transport is listening on.
	LocalAddr() net.Addr

	// SetHandler installs the handler for received datagrams. A nil
	// handler drops them.
	SetHandler(handler DatagramHandler)
}
