// Package netloop implements the single-threaded cooperative event loop
// that multiplexes the TCP listener, the UDP broadcast socket, accepted TCP
// sessions, and per-connection consuming UDP sockets, driving periodic
// connection-manager bookkeeping on a timer tick.
package netloop

import (
	"time"

	"golang.org/x/sys/unix"
)

// Logger is the subset of logging behavior the loop needs; satisfied by
// internal.Logger (and so by internal/logging.New's result) without
// importing it directly, avoiding a needless
// package dependency for a four-method shape.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// ExplicitHandler is the Encapsulation Adapter (C5): the two opaque entry
// points the core calls to frame and dispatch explicit messages.
type ExplicitHandler interface {
	// HandleExplicitTCP processes length bytes of buf in place and returns
	// the number of reply bytes written back into buf (0 = no reply).
	HandleExplicitTCP(fd int, buf []byte, length int) (replyLen int, err error)
	// HandleExplicitUDP processes one encapsulation message at the front of
	// buf, returns the reply bytes (nil = no reply) and how many bytes of
	// buf were consumed so the caller can advance past it.
	HandleExplicitUDP(buf []byte) (reply []byte, consumed int)
}

// Config carries the tunables named in the external interfaces: tick
// interval, shared buffer sizing, multicast TTL, and TCP backlog.
type Config struct {
	TickMs        int64
	BufferSize    int
	TimeToLive    int
	MaxTCPSockets int
}

// Connection is an externally-owned cyclic I/O connection: a pair of
// sockets and a close callback. Connections form a singly-linked list the
// loop walks every iteration (C9).
type Connection struct {
	Next         *Connection
	ConsumingFD  int
	ProducingFD  int
	RemoteAddr   unix.Sockaddr
	Close        func()
	onReceive    func(data []byte, from unix.Sockaddr)
}

// Loop is the Network State: listener descriptors, tracked/readiness sets,
// the high-watermark descriptor, and the elapsed-tick accumulator.
type Loop struct {
	config Config
	logger Logger

	tcpListenerFD int
	udpListenerFD int

	tracked   unix.FdSet
	readiness unix.FdSet
	watermark int

	elapsedMs int64
	lastTick  time.Time

	// ActiveTCPFD mirrors g_current_active_tcp_fd from the original design:
	// it equals the socket delivering the in-flight request while a TCP
	// service handler runs, and -1 otherwise. It is a field of the Loop, not
	// a package global; it is not passed as a parameter through request
	// handling, so the socket factory reads it from the Loop.
	ActiveTCPFD int

	connections *Connection

	adapter  ExplicitHandler
	manage   func()
	buffer   []byte
}

// New creates a Loop bound to listener file descriptors already created by
// the caller (see ListenTCP/ListenUDPBroadcast), an adapter implementing
// C5, and the ManageConnections callback driven by the periodic tick (C10).
func New(cfg Config, logger Logger, tcpListenerFD, udpListenerFD int, adapter ExplicitHandler, manage func()) *Loop {
	l := &Loop{
		config:        cfg,
		logger:        logger,
		tcpListenerFD: tcpListenerFD,
		udpListenerFD: udpListenerFD,
		ActiveTCPFD:   -1,
		adapter:       adapter,
		manage:        manage,
		buffer:        make([]byte, cfg.BufferSize),
		lastTick:      time.Now(),
	}
	l.track(tcpListenerFD)
	l.track(udpListenerFD)
	return l
}

// track adds fd to the tracked set and advances the watermark.
func (l *Loop) track(fd int) {
	fdAdd(fd, &l.tracked)
	if fd > l.watermark {
		l.watermark = fd
	}
}

// untrack removes fd from the tracked set. The watermark is left as-is;
// it only ever needs to grow to stay ≥ the max tracked descriptor, and
// shrinking it is an optimization, not a correctness requirement.
func (l *Loop) untrack(fd int) {
	fdClr(fd, &l.tracked)
}

// AddConnection registers an externally-owned connection so ProcessOnce's
// consuming-socket pass (C9) walks it.
func (l *Loop) AddConnection(c *Connection) {
	c.Next = l.connections
	l.connections = c
	if c.ConsumingFD >= 0 {
		l.track(c.ConsumingFD)
	}
	if c.ProducingFD >= 0 {
		l.track(c.ProducingFD)
	}
}

// checkSocketSet returns true only if fd is in both the tracked and
// readiness sets, and always clears fd from the readiness set so a later
// pass in the same iteration never reprocesses the same event.
func (l *Loop) checkSocketSet(fd int) bool {
	ready := fdIsSet(fd, &l.readiness) && fdIsSet(fd, &l.tracked)
	fdClr(fd, &l.readiness)
	return ready
}

// ProcessOnce runs one iteration of the cooperative loop (C6): copy the
// tracked set, wait for readiness up to the remaining tick budget, dispatch
// whatever is ready in the fixed order (listener, broadcast, consuming,
// then TCP data sockets by ascending fd), then drain however many whole
// ticks have elapsed.
func (l *Loop) ProcessOnce() error {
	fdCopy(&l.readiness, &l.tracked)

	timeoutMs := l.config.TickMs - l.elapsedMs
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	tv := unix.NsecToTimeval(timeoutMs * int64(time.Millisecond))

	n, err := unix.Select(l.watermark+1, &l.readiness, nil, nil, &tv)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}

	if n > 0 {
		if l.checkSocketSet(l.tcpListenerFD) {
			l.acceptTCP()
		}
		if l.checkSocketSet(l.udpListenerFD) {
			l.handleUDPBroadcast()
		}
		l.handleConsumingUDP()

		for fd := 0; fd <= l.watermark; fd++ {
			if fd == l.tcpListenerFD || fd == l.udpListenerFD {
				continue
			}
			if l.isConnectionSocket(fd) {
				continue
			}
			if !l.checkSocketSet(fd) {
				continue
			}
			if err := l.handleTCPData(fd); err != nil {
				l.logger.Warnf("netloop: tcp session %d closed: %v", fd, err)
				unix.Close(fd)
				l.untrack(fd)
			}
		}
	}

	now := time.Now()
	l.drainTicks(now.Sub(l.lastTick).Milliseconds())
	l.lastTick = now

	return nil
}

// drainTicks accumulates deltaMs of elapsed wall-clock time and calls
// ManageConnections once per whole tick_ms that has accumulated, draining
// bursts of missed ticks in one pass to compensate for scheduler jitter
// (C10). Exposed as its own step so the drain count is testable without a
// live readiness wait.
func (l *Loop) drainTicks(deltaMs int64) {
	l.elapsedMs += deltaMs
	for l.elapsedMs >= l.config.TickMs {
		l.manage()
		l.elapsedMs -= l.config.TickMs
	}
}

// ElapsedMs returns the current tick accumulator, for tests and metrics.
func (l *Loop) ElapsedMs() int64 { return l.elapsedMs }

func (l *Loop) isConnectionSocket(fd int) bool {
	for c := l.connections; c != nil; c = c.Next {
		if c.ConsumingFD == fd || c.ProducingFD == fd {
			return true
		}
	}
	return false
}
