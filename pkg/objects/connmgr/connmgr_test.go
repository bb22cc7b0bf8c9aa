package connmgr

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cipforge/adapter/pkg/cip"
	"github.com/cipforge/adapter/pkg/netloop"
	"golang.org/x/sys/unix"
)

type fakeFactory struct {
	nextFD      int
	connections []*netloop.Connection
}

func (f *fakeFactory) CreateUDPSocket(dir netloop.Direction, addr *unix.SockaddrInet4) (int, error) {
	f.nextFD++
	return f.nextFD, nil
}

func (f *fakeFactory) AddConnection(c *netloop.Connection) {
	f.connections = append(f.connections, c)
}

func encodeForwardOpenRequest(t *testing.T, instanceID uint32, timeoutMultiplier byte) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	fields := []any{
		cip.BYTE(0x0A),        // PriorityTimeTick
		cip.USINT(5),          // TimeoutTicks
		cip.UDINT(0x11111111), // OTConnectionID
		cip.UDINT(0x22222222), // TOConnectionID
		cip.UINT(1),           // ConnectionSerialNumber
		cip.UINT(0x1337),      // VendorID
		cip.UDINT(0xABCDEF01), // OriginatorSerialNumber
		cip.USINT(timeoutMultiplier),
		[3]cip.BYTE{},
		cip.UDINT(10000), // OTRPI
		uint16(0x4302),   // OTNetworkConnectionParams
		cip.UDINT(10000), // TORPI
		uint16(0x4302),   // TONetworkConnectionParams
		cip.BYTE(0x01),   // TransportTypeTrigger
		cip.USINT(2),     // ConnectionPathSize (2 words)
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			t.Fatalf("encode field: %v", err)
		}
	}
	// Connection path: class 0x04 (Assembly), instance=instanceID (8-bit form).
	buf.Write([]byte{0x20, 0x04, 0x24, byte(instanceID)})
	return buf.Bytes()
}

func TestConnectionManager_ForwardOpenAllocatesSockets(t *testing.T) {
	factory := &fakeFactory{}
	var delivered []byte
	cm := New(factory, func(instanceID uint32, data []byte, from unix.Sockaddr) {
		if instanceID != 100 {
			t.Errorf("instanceID = %d, want 100", instanceID)
		}
		delivered = data
	})

	req := &cip.Request{Service: ServiceForwardOpen, Data: encodeForwardOpenRequest(t, 100, 4)}
	resp := &cip.Response{}
	outcome := cm.Notify(nil, req, resp)

	if outcome != cip.OkReplied {
		t.Fatalf("outcome = %v, want OkReplied", outcome)
	}
	if resp.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", resp.GeneralStatus)
	}
	if resp.ReplyService != (ServiceForwardOpen | 0x80) {
		t.Errorf("reply service = 0x%X, want 0x%X", resp.ReplyService, ServiceForwardOpen|0x80)
	}
	if len(factory.connections) != 1 {
		t.Fatalf("connections registered = %d, want 1", len(factory.connections))
	}
	_ = delivered
}

func TestConnectionManager_ForwardCloseRemovesConnection(t *testing.T) {
	factory := &fakeFactory{}
	cm := New(factory, nil)

	openReq := &cip.Request{Service: ServiceForwardOpen, Data: encodeForwardOpenRequest(t, 100, 4)}
	openResp := &cip.Response{}
	cm.Notify(nil, openReq, openResp)

	if len(cm.connections) != 1 {
		t.Fatalf("connections = %d, want 1", len(cm.connections))
	}

	closeData := new(bytes.Buffer)
	for _, f := range []any{
		cip.BYTE(0x0A), cip.USINT(5), cip.UINT(1), cip.UINT(0x1337), cip.UDINT(0xABCDEF01),
		cip.USINT(0), cip.USINT(0),
	} {
		binary.Write(closeData, binary.LittleEndian, f)
	}

	closeReq := &cip.Request{Service: ServiceForwardClose, Data: closeData.Bytes()}
	closeResp := &cip.Response{}
	outcome := cm.Notify(nil, closeReq, closeResp)

	if outcome != cip.OkReplied {
		t.Fatalf("outcome = %v, want OkReplied", outcome)
	}
	if closeResp.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", closeResp.GeneralStatus)
	}
	if len(cm.connections) != 0 {
		t.Errorf("connections after close = %d, want 0", len(cm.connections))
	}
}

func TestConnectionManager_ManageExpiresStaleConnections(t *testing.T) {
	factory := &fakeFactory{}
	cm := New(factory, nil)

	req := &cip.Request{Service: ServiceForwardOpen, Data: encodeForwardOpenRequest(t, 100, 0)}
	resp := &cip.Response{}
	cm.Notify(nil, req, resp)

	if len(cm.connections) != 1 {
		t.Fatalf("connections = %d, want 1", len(cm.connections))
	}

	for i := 0; i < 5; i++ {
		cm.Manage()
	}

	if len(cm.connections) != 0 {
		t.Errorf("connections after ticks = %d, want 0 (expired)", len(cm.connections))
	}
}

func TestConnectionManager_UnsupportedServiceReturnsError(t *testing.T) {
	cm := New(&fakeFactory{}, nil)
	req := &cip.Request{Service: 0x99}
	resp := &cip.Response{}
	cm.Notify(nil, req, resp)
	if resp.GeneralStatus != cip.StatusServiceNotSupported {
		t.Errorf("status = 0x%X, want ServiceNotSupported", resp.GeneralStatus)
	}
}
