package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/afvoice/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	data []byte
	addr net.Addr
}

func collect(t *testing.T, tr Transport) <-chan received {
	t.Helper()
	ch := make(chan received, 16)
	tr.SetHandler(func(data []byte, addr net.Addr) {
		ch <- received{data: append([]byte(nil), data...), addr: addr}
	})
	return ch
}

func newLoopback(t *testing.T) *UDPTransport {
	t.Helper()
	tr, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestUDPTransportSendReceive(t *testing.T) {
	a := newLoopback(t)
	b := newLoopback(t)
	inbox := collect(t, b)

	require.NoError(t, a.Send([]byte("hello"), b.LocalAddr()))

	select {
	case got := <-inbox:
		assert.Equal(t, []byte("hello"), got.data)
		assert.Equal(t, a.LocalAddr().String(), got.addr.String())
	case <-time.After(2 * time.Second):
		t.Fatal("datagram not received")
	}
	assert.Equal(t, uint64(1), b.Received())
}

func TestUDPTransportPreservesOrder(t *testing.T) {
	a := newLoopback(t)
	b := newLoopback(t)
	inbox := collect(t, b)

	for i := byte(0); i < 10; i++ {
		require.NoError(t, a.Send([]byte{i}, b.LocalAddr()))
	}
	for i := byte(0); i < 10; i++ {
		select {
		case got := <-inbox:
			assert.Equal(t, []byte{i}, got.data)
		case <-time.After(2 * time.Second):
			t.Fatalf("datagram %d not received", i)
		}
	}
}

func TestUDPTransportSendRejectsBadSizes(t *testing.T) {
	a := newLoopback(t)

	assert.ErrorIs(t, a.Send(nil, a.LocalAddr()), limits.ErrMessageEmpty)
	assert.ErrorIs(t, a.Send(make([]byte, limits.MaxDatagramSize+1), a.LocalAddr()), limits.ErrMessageTooLarge)
}

func TestUDPTransportWithoutHandlerDrops(t *testing.T) {
	a := newLoopback(t)
	b := newLoopback(t)

	require.NoError(t, a.Send([]byte("x"), b.LocalAddr()))
	assert.Eventually(t, func() bool { return b.Dropped() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestUDPTransportCloseIsIdempotent(t *testing.T) {
	tr, err := NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	var calls sync.WaitGroup
	calls.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer calls.Done()
			tr.Close()
		}()
	}
	calls.Wait()
	assert.Error(t, tr.Send([]byte("late"), tr.LocalAddr()))
}
