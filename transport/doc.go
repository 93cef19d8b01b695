// Package transport moves opaque datagrams over UDP.
//
// The transport knows nothing about envelopes or encryption: it bounds
// datagram size at limits.MaxDatagramSize, reads with a short deadline so
// Close is prompt, and hands each datagram to a single handler on one read
// goroutine so receive order is preserved.
//
//	tr, err := transport.NewUDPTransport(":6010")
//	tr.SetHandler(func(data []byte, from net.Addr) { ... })
//	err = tr.Send(datagram, peer)
package transport
