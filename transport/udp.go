package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/afvoice/limits"
	"github.com/sirupsen/logrus"
)

// readTimeout bounds each blocking read so the loop notices Close promptly.
const readTimeout = 100 * time.Millisecond

// UDPTransport sends and receives raw datagrams over a UDP socket.
// It satisfies the Transport interface.
//
// Received datagrams are delivered to the handler synchronously from a
// single read goroutine, in arrival order.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	handler    atomic.Pointer[DatagramHandler]
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once

	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewUDPTransport creates a new UDP transport listener.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	transport := &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewUDPTransport",
		"local":    transport.listenAddr.String(),
	}).Info("UDP transport listening")

	go transport.processDatagrams()

	return transport, nil
}

// SetHandler installs the receive handler.
func (t *UDPTransport) SetHandler(handler DatagramHandler) {
	if handler == nil {
		t.handler.Store(nil)
		return
	}
	t.handler.Store(&handler)
}

// Send sends one datagram to addr. Datagrams over the size ceiling are
// refused without touching the socket.
func (t *UDPTransport) Send(data []byte, addr net.Addr) error {
	if err := limits.ValidateDatagram(data); err != nil {
		return err
	}
	_, err := t.conn.WriteTo(data, addr)
	return err
}

// Close shuts down the transport and waits for the read loop to exit, so no
// handler call is running once Close returns.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close()
		<-t.done
	})
	return err
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

// Received returns the number of datagrams handed to the handler.
func (t *UDPTransport) Received() uint64 { return t.received.Load() }

// Dropped returns the number of datagrams discarded before dispatch.
func (t *UDPTransport) Dropped() uint64 { return t.dropped.Load() }

// processDatagrams handles incoming datagrams until Close.
func (t *UDPTransport) processDatagrams() {
	defer close(t.done)
	// One byte over the ceiling so oversize datagrams are detectable.
	buffer := make([]byte, limits.MaxDatagramSize+1)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingDatagram(buffer)
		}
	}
}

// processIncomingDatagram reads and dispatches a single datagram.
func (t *UDPTransport) processIncomingDatagram(buffer []byte) {
	_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		t.handleReadError(err)
		return
	}

	if err := limits.ValidateDatagram(buffer[:n]); err != nil {
		t.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "processIncomingDatagram",
			"size":     n,
			"from":     addr.String(),
		}).Debug("Dropping datagram outside size limits")
		return
	}

	h := t.handler.Load()
	if h == nil {
		t.dropped.Add(1)
		return
	}
	t.received.Add(1)
	(*h)(buffer[:n], addr)
}

// handleReadError logs read errors other than deadline expiry and shutdown.
func (t *UDPTransport) handleReadError(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	if errors.Is(err, net.ErrClosed) || t.ctx.Err() != nil {
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "handleReadError",
		"error":    err.Error(),
	}).Warn("UDP read failed")
}
