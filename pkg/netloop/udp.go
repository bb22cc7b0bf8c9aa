package netloop

import "golang.org/x/sys/unix"

// handleUDPBroadcast implements the UDP Broadcast Handler (C8): receive one
// datagram, then repeatedly hand successive encapsulation messages within
// it to the adapter until the whole datagram is consumed, replying to the
// source address after each one. This supports multiple requests batched
// into a single datagram (list-identity floods are the common case).
func (l *Loop) handleUDPBroadcast() {
	n, from, err := unix.Recvfrom(l.udpListenerFD, l.buffer, 0)
	if err != nil || n <= 0 {
		return
	}

	remaining := l.buffer[:n]
	for len(remaining) > 0 {
		reply, consumed := l.adapter.HandleExplicitUDP(remaining)
		if consumed <= 0 {
			break
		}
		remaining = remaining[consumed:]

		if len(reply) > 0 {
			if err := unix.Sendto(l.udpListenerFD, reply, 0, from); err != nil {
				l.logger.Warnf("netloop: udp broadcast reply failed: %v", err)
			}
		}
	}
}

// handleConsumingUDP implements the UDP Consuming Handler (C9): walk the
// externally-managed connection list, snapshotting Next before dispatch
// since a receive error closes (and may remove) the current entry.
func (l *Loop) handleConsumingUDP() {
	for c := l.connections; c != nil; {
		next := c.Next
		if c.ConsumingFD >= 0 && l.checkSocketSet(c.ConsumingFD) {
			n, from, err := unix.Recvfrom(c.ConsumingFD, l.buffer, 0)
			if err != nil || n <= 0 {
				if c.Close != nil {
					c.Close()
				}
			} else if c.onReceive != nil {
				c.onReceive(l.buffer[:n], from)
			}
		}
		c = next
	}
}

// SetReceiveHandler installs the HandleReceivedConnectedData callback for a
// connection, invoked with the payload and source address of each consumed
// datagram.
func (c *Connection) SetReceiveHandler(fn func(data []byte, from unix.Sockaddr)) {
	c.onReceive = fn
}
