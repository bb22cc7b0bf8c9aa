// Package connmgr implements the CIP Connection Manager Object (Class
// 0x06): Forward_Open, Large_Forward_Open and Forward_Close. Opening a
// connection allocates the producing/consuming UDP sockets the cyclic I/O
// path needs and registers the result in the event loop's connection list
// (§4.9); Manage is the ManageConnections callback the periodic driver
// (C10) invokes every tick to expire connections whose originator has gone
// quiet.
package connmgr

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/cipforge/adapter/pkg/cip"
	"github.com/cipforge/adapter/pkg/netloop"
	"golang.org/x/sys/unix"
)

// SocketFactory is the subset of netloop.Loop a Forward_Open needs: the UDP
// Socket Factory (§4.11) and the connection-list registration the
// consuming-socket walk (C9) depends on. *netloop.Loop satisfies this
// directly; it is named here so connmgr does not need a live Loop to be
// constructed in tests.
type SocketFactory interface {
	CreateUDPSocket(dir netloop.Direction, addr *unix.SockaddrInet4) (int, error)
	AddConnection(c *netloop.Connection)
}

// Deliver receives the bytes and source address consumed off a
// connection's consuming socket, addressed by the target instance named in
// the connection path — normally an Assembly instance's
// Set_Attribute_Single on attribute 3 (Data).
type Deliver func(instanceID uint32, data []byte, from unix.Sockaddr)

// connection is the Connection Manager's bookkeeping for one open
// connection: the identifying triad, the allocated sockets, and a
// tick-based liveness counter Manage uses to expire stale connections.
type connection struct {
	serial         cip.UINT
	vendorID       cip.UINT
	originatorSN   cip.UDINT
	otConnID       uint32
	toConnID       uint32
	consumingFD    int
	producingFD    int
	timeoutTicks   int
	ticksSinceSeen int
}

// ConnectionManager implements the CIP Connection Manager Object (Class 0x06).
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[uint32]*connection
	nextConnID  uint32

	factory SocketFactory
	deliver Deliver
}

// New creates a Connection Manager that allocates cyclic I/O sockets
// through factory and delivers consumed data through deliver.
func New(factory SocketFactory, deliver Deliver) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[uint32]*connection),
		nextConnID:  0x80000000,
		factory:     factory,
		deliver:     deliver,
	}
}

// Notify implements cip.CipObject: dispatch by service, report a cip.Error
// with its own general status and any other error as ConnectionFailure,
// and otherwise fill the response with the service's reply body.
func (cm *ConnectionManager) Notify(class *cip.Class, req *cip.Request, resp *cip.Response) cip.DispatchOutcome {
	resp.ReplyService = req.Service | 0x80

	var out []byte
	var err error
	switch req.Service {
	case ServiceForwardOpen:
		out, err = cm.handleForwardOpen(req.Data, false)
	case ServiceLargeForwardOpen:
		out, err = cm.handleForwardOpen(req.Data, true)
	case ServiceForwardClose:
		out, err = cm.handleForwardClose(req.Data)
	default:
		resp.GeneralStatus = cip.StatusServiceNotSupported
		return cip.OkReplied
	}

	if err != nil {
		resp.GeneralStatus = StatusConnectionFailure
		if cerr, ok := err.(cip.Error); ok {
			resp.GeneralStatus = cerr.Status
		}
		return cip.OkReplied
	}

	resp.SetData(out)
	resp.GeneralStatus = cip.StatusSuccess
	return cip.OkReplied
}

// Manage is the periodic connection-manager tick (C10): every open
// connection's liveness counter advances, and a connection whose
// originator hasn't been heard from within its negotiated timeout has its
// sockets closed and is dropped.
func (cm *ConnectionManager) Manage() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for id, c := range cm.connections {
		c.ticksSinceSeen++
		if c.timeoutTicks > 0 && c.ticksSinceSeen >= c.timeoutTicks {
			cm.closeConnectionLocked(c)
			delete(cm.connections, id)
		}
	}
}

func (cm *ConnectionManager) closeConnectionLocked(c *connection) {
	if c.consumingFD >= 0 {
		unix.Close(c.consumingFD)
	}
	if c.producingFD >= 0 {
		unix.Close(c.producingFD)
	}
}

// handleForwardOpen decodes a Forward_Open (or, when large is set,
// Large_Forward_Open) request, allocates the cyclic I/O sockets the
// negotiated connection needs, and registers the resulting connection with
// the event loop so the consuming-UDP handler (C9) starts delivering its
// traffic to the target named in the connection path.
func (cm *ConnectionManager) handleForwardOpen(reqData []byte, large bool) ([]byte, error) {
	req, err := decodeForwardOpen(reqData, large)
	if err != nil {
		return nil, err
	}

	targetInstance, pathErr := targetInstanceFromConnectionPath(req.ConnectionPath)

	cm.mu.Lock()
	cm.nextConnID++
	myConnID := cm.nextConnID
	cm.mu.Unlock()

	c := &connection{
		serial:       req.ConnectionSerialNumber,
		vendorID:     req.VendorID,
		originatorSN: req.OriginatorSerialNumber,
		otConnID:     uint32(req.OTConnectionID),
		toConnID:     myConnID,
		consumingFD:  -1,
		producingFD:  -1,
		timeoutTicks: int(req.ConnectionTimeoutMultiplier)*4 + 1,
	}

	if pathErr == nil {
		var consumeAddr unix.SockaddrInet4
		if fd, err := cm.factory.CreateUDPSocket(netloop.Consuming, &consumeAddr); err == nil {
			c.consumingFD = fd
		}
		var produceAddr unix.SockaddrInet4
		if fd, err := cm.factory.CreateUDPSocket(netloop.Producing, &produceAddr); err == nil {
			c.producingFD = fd
		}
		if c.consumingFD >= 0 {
			nc := &netloop.Connection{
				ConsumingFD: c.consumingFD,
				ProducingFD: c.producingFD,
				Close: func() {
					cm.mu.Lock()
					defer cm.mu.Unlock()
					cm.closeConnectionLocked(c)
					delete(cm.connections, myConnID)
				},
			}
			nc.SetReceiveHandler(func(data []byte, from unix.Sockaddr) {
				cm.mu.Lock()
				c.ticksSinceSeen = 0
				cm.mu.Unlock()
				if cm.deliver != nil {
					cm.deliver(targetInstance, data, from)
				}
			})
			cm.factory.AddConnection(nc)
		}
	}

	cm.mu.Lock()
	cm.connections[myConnID] = c
	cm.mu.Unlock()

	return encodeForwardOpenResponse(req, myConnID, large)
}

// targetInstanceFromConnectionPath decodes the connection path embedded in
// a Forward_Open request with the same EPath decoder the router uses for
// the outer request path (C2): its instance segment names the Assembly (or
// other) instance this connection addresses. If the path holds several
// instance segments, the last one wins.
func targetInstanceFromConnectionPath(path []byte) (uint32, error) {
	epath, _, err := cip.DecodeEPath(append([]byte{byte(len(path) / 2)}, path...))
	if err != nil {
		return 0, err
	}
	return epath.InstanceID, nil
}

type forwardOpenFields struct {
	PriorityTimeTick            cip.BYTE
	TimeoutTicks                cip.USINT
	OTConnectionID              cip.UDINT
	TOConnectionID              cip.UDINT
	ConnectionSerialNumber      cip.UINT
	VendorID                    cip.UINT
	OriginatorSerialNumber      cip.UDINT
	ConnectionTimeoutMultiplier cip.USINT
	OTRPI                       cip.UDINT
	OTNetworkConnectionParams   uint32
	TORPI                       cip.UDINT
	TONetworkConnectionParams   uint32
	TransportTypeTrigger        cip.BYTE
	ConnectionPathSize          cip.USINT
	ConnectionPath              []byte
	large                       bool
}

func decodeForwardOpen(reqData []byte, large bool) (*forwardOpenFields, error) {
	r := bytes.NewReader(reqData)
	req := &forwardOpenFields{large: large}

	fields := []any{
		&req.PriorityTimeTick, &req.TimeoutTicks, &req.OTConnectionID, &req.TOConnectionID,
		&req.ConnectionSerialNumber, &req.VendorID, &req.OriginatorSerialNumber,
		&req.ConnectionTimeoutMultiplier,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
	}
	var reserved [3]cip.BYTE
	if err := binary.Read(r, binary.LittleEndian, &reserved); err != nil {
		return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
	}
	if err := binary.Read(r, binary.LittleEndian, &req.OTRPI); err != nil {
		return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
	}
	if large {
		if err := binary.Read(r, binary.LittleEndian, &req.OTNetworkConnectionParams); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
	} else {
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
		req.OTNetworkConnectionParams = uint32(v)
	}
	if err := binary.Read(r, binary.LittleEndian, &req.TORPI); err != nil {
		return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
	}
	if large {
		if err := binary.Read(r, binary.LittleEndian, &req.TONetworkConnectionParams); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
	} else {
		var v uint16
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
		req.TONetworkConnectionParams = uint32(v)
	}
	if err := binary.Read(r, binary.LittleEndian, &req.TransportTypeTrigger); err != nil {
		return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
	}
	if err := binary.Read(r, binary.LittleEndian, &req.ConnectionPathSize); err != nil {
		return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
	}

	pathLen := int(req.ConnectionPathSize) * 2
	req.ConnectionPath = make([]byte, pathLen)
	if pathLen > 0 {
		if _, err := r.Read(req.ConnectionPath); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
	}
	return req, nil
}

func encodeForwardOpenResponse(req *forwardOpenFields, myConnID uint32, large bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	values := []any{
		cip.UDINT(req.OTConnectionID),
		cip.UDINT(myConnID),
		req.ConnectionSerialNumber,
		req.VendorID,
		req.OriginatorSerialNumber,
		req.OTRPI,
		req.TORPI,
		cip.USINT(0), // application reply size
		cip.USINT(0), // reserved
	}
	for _, v := range values {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// handleForwardClose decodes a Forward_Close request, locates the matching
// connection by its identifying triad, and tears down its sockets.
func (cm *ConnectionManager) handleForwardClose(reqData []byte) ([]byte, error) {
	r := bytes.NewReader(reqData)
	var priorityTimeTick cip.BYTE
	var timeoutTicks cip.USINT
	var serial, vendorID cip.UINT
	var originatorSN cip.UDINT
	var pathSize, reserved cip.USINT

	for _, f := range []any{&priorityTimeTick, &timeoutTicks, &serial, &vendorID, &originatorSN, &pathSize, &reserved} {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, cip.Error{Status: cip.StatusPathSizeInvalid}
		}
	}

	cm.mu.Lock()
	var found *connection
	var foundID uint32
	for id, c := range cm.connections {
		if c.serial == serial && c.vendorID == vendorID && c.originatorSN == originatorSN {
			found = c
			foundID = id
			break
		}
	}
	if found != nil {
		cm.closeConnectionLocked(found)
		delete(cm.connections, foundID)
	}
	cm.mu.Unlock()

	buf := new(bytes.Buffer)
	for _, v := range []any{serial, vendorID, originatorSN, cip.USINT(0), cip.USINT(0)} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
