package netloop

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

var errPeerClosed = errors.New("netloop: peer closed connection")

// acceptTCP accepts one pending connection on the listener and starts
// tracking it; max_tcp_sockets bounds how many accepted sessions the loop
// will track at once, matching the configured listen backlog.
func (l *Loop) acceptTCP() {
	if l.countConnections() >= l.config.MaxTCPSockets {
		nfd, _, err := unix.Accept(l.tcpListenerFD)
		if err == nil {
			unix.Close(nfd)
		}
		return
	}

	nfd, _, err := unix.Accept(l.tcpListenerFD)
	if err != nil {
		l.logger.Warnf("netloop: accept failed: %v", err)
		return
	}
	l.track(nfd)
}

func (l *Loop) countConnections() int {
	n := 0
	for fd := 0; fd <= l.watermark; fd++ {
		if fd == l.tcpListenerFD || fd == l.udpListenerFD {
			continue
		}
		if fdIsSet(fd, &l.tracked) && !l.isConnectionSocket(fd) {
			n++
		}
	}
	return n
}

// handleTCPData implements the TCP Session Handler (C7) for one ready
// socket: peek the 4-byte command+length prefix, drop oversized frames,
// read the remainder of one encapsulation frame, dispatch it through the
// Encapsulation Adapter with ActiveTCPFD bracketing the call, and send the
// reply if any.
func (l *Loop) handleTCPData(fd int) error {
	const headerSize = 24
	prefix := l.buffer[:4]
	if err := readExact(fd, prefix); err != nil {
		return err
	}

	payloadLength := int(binary.LittleEndian.Uint16(prefix[2:4]))
	totalFrameSize := headerSize + payloadLength - 4

	if totalFrameSize > l.config.BufferSize-4 {
		return l.drainOversizedFrame(fd, totalFrameSize)
	}

	if totalFrameSize > 0 {
		if err := readExact(fd, l.buffer[4:4+totalFrameSize]); err != nil {
			return err
		}
	}

	totalLength := 4 + totalFrameSize
	l.ActiveTCPFD = fd
	replyLen, err := l.adapter.HandleExplicitTCP(fd, l.buffer, totalLength)
	l.ActiveTCPFD = -1
	if err != nil {
		return err
	}

	if replyLen > 0 {
		if _, err := unix.Write(fd, l.buffer[:replyLen]); err != nil {
			l.logger.Warnf("netloop: short send on fd %d: %v", fd, err)
		}
	}
	return nil
}

// drainOversizedFrame reads and discards an over-length frame so the
// connection stays usable for the next one. The original source decremented
// a remaining-byte counter without clamping to zero, an underflow risk if a
// single read exceeded the remaining count (Design Notes, Open Question b);
// this loop clamps remaining to zero on every iteration instead.
func (l *Loop) drainOversizedFrame(fd int, remaining int) error {
	for remaining > 0 {
		chunk := l.buffer
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		n, err := unix.Read(fd, chunk)
		if err != nil {
			return err
		}
		if n <= 0 {
			return errPeerClosed
		}
		remaining -= n
		if remaining < 0 {
			remaining = 0
		}
	}
	return nil
}

// readExact issues a single blocking read into buf and treats anything
// short of a full buffer — including 0 (peer closed) — as an error rather
// than looping to retry. No socket in this package is ever put in
// non-blocking mode, so retrying a short read here would block the whole
// cooperative loop on one slow or malicious peer; short reads are errors,
// and fragmented frames are not reassembled.
func readExact(fd int, buf []byte) error {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return errPeerClosed
	}
	return nil
}
