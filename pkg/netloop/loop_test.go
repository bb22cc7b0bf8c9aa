package netloop

import (
	"testing"

	"golang.org/x/sys/unix"

	"github.com/cipforge/adapter/internal"
)

type noopAdapter struct{}

func (noopAdapter) HandleExplicitTCP(fd int, buf []byte, length int) (int, error) { return 0, nil }
func (noopAdapter) HandleExplicitUDP(buf []byte) ([]byte, int)                    { return nil, len(buf) }

func newTestLoop(t *testing.T, manage func()) *Loop {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	cfg := Config{TickMs: 10, BufferSize: 64, TimeToLive: 1, MaxTCPSockets: 10}
	return New(cfg, internal.NopLogger(), fds[0], fds[1], noopAdapter{}, manage)
}

func TestDrainTicks_CallsManageOncePerWholeTick(t *testing.T) {
	calls := 0
	l := newTestLoop(t, func() { calls++ })

	// 35ms with tick_ms=10 should drain exactly 3 whole ticks (S6).
	l.drainTicks(35)

	if calls != 3 {
		t.Errorf("manage called %d times, want 3", calls)
	}
	if l.ElapsedMs() > 10 {
		t.Errorf("elapsedMs = %d, want <= 10", l.ElapsedMs())
	}
}

func TestDrainTicks_AccumulatesAcrossCalls(t *testing.T) {
	calls := 0
	l := newTestLoop(t, func() { calls++ })

	l.drainTicks(4)
	l.drainTicks(4)
	if calls != 0 {
		t.Fatalf("manage called %d times before a full tick elapsed, want 0", calls)
	}
	l.drainTicks(4)
	if calls != 1 {
		t.Errorf("manage called %d times, want 1 after 12ms total", calls)
	}
}

func TestCheckSocketSet_ClearsReadinessRegardlessOfResult(t *testing.T) {
	l := newTestLoop(t, func() {})

	fdAdd(5, &l.tracked)
	fdAdd(5, &l.readiness)
	fdAdd(6, &l.readiness) // ready but not tracked

	if !l.checkSocketSet(5) {
		t.Error("expected fd 5 to be ready (tracked and in readiness set)")
	}
	if fdIsSet(5, &l.readiness) {
		t.Error("expected fd 5 cleared from readiness set after check")
	}

	if l.checkSocketSet(6) {
		t.Error("fd 6 is not tracked, expected checkSocketSet to return false")
	}
	if fdIsSet(6, &l.readiness) {
		t.Error("expected fd 6 cleared from readiness set even on miss")
	}
}

func TestDrainOversizedFrame_ExactlyConsumesDeclaredLength(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	l := &Loop{config: Config{BufferSize: 16}, logger: internal.NopLogger(), buffer: make([]byte, 16)}

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		_, werr := unix.Write(fds[1], payload)
		done <- werr
	}()

	if err := l.drainOversizedFrame(fds[0], len(payload)); err != nil {
		t.Fatalf("drainOversizedFrame: %v", err)
	}
	if werr := <-done; werr != nil {
		t.Fatalf("write side failed: %v", werr)
	}
}
