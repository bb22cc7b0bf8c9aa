package netloop

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Direction distinguishes a cyclic I/O consuming socket (this device
// receives) from a producing socket (this device sends).
type Direction int

const (
	Consuming Direction = iota
	Producing
)

var errNoActiveTCPPeer = errors.New("netloop: udp socket factory needs an active tcp peer")

// CreateUDPSocket implements the UDP Socket Factory (§4.11): it creates a
// datagram socket, configures it for the requested direction, and — for a
// consuming socket or a peer-to-peer producing socket (destination address
// unset) — resolves the peer address from the currently active TCP session,
// mutating addr in place. That lookup only succeeds while a TCP explicit
// exchange is in progress, i.e. while ActiveTCPFD is set (see
// handleTCPData).
func (l *Loop) CreateUDPSocket(dir Direction, addr *unix.SockaddrInet4) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, err
	}

	if dir == Consuming {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return -1, err
		}
		if err := unix.Bind(fd, addr); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}

	if dir == Producing && isMulticast(addr) && l.config.TimeToLive != 1 {
		// The original C source passed sizeof(bool-comparison-result) as the
		// setsockopt option length here, a latent bug (Design Notes, Open
		// Question a). unix.SetsockoptInt takes the option value directly
		// and derives the correct length itself, so there is no equivalent
		// mistake to make in this port.
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, l.config.TimeToLive); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}

	peerToPeer := dir == Producing && addrIsUnspecified(addr)
	if dir == Consuming || peerToPeer {
		if l.ActiveTCPFD < 0 {
			unix.Close(fd)
			return -1, errNoActiveTCPPeer
		}
		peerAddr, err := unix.Getpeername(l.ActiveTCPFD)
		if err != nil {
			unix.Close(fd)
			return -1, err
		}
		peer, ok := peerAddr.(*unix.SockaddrInet4)
		if !ok {
			unix.Close(fd)
			return -1, errors.New("netloop: active tcp peer is not IPv4")
		}
		*addr = *peer
	}

	l.track(fd)
	return fd, nil
}

func isMulticast(addr *unix.SockaddrInet4) bool {
	return addr.Addr[0] >= 224 && addr.Addr[0] <= 239
}

func addrIsUnspecified(addr *unix.SockaddrInet4) bool {
	return addr.Addr == [4]byte{}
}
