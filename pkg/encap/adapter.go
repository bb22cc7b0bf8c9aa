// Package encap implements the Encapsulation Adapter (C5): the two entry
// points the network event loop calls to frame explicit messages over TCP
// and UDP and delegate the CIP request inside them to the Message Router.
package encap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cipforge/adapter/pkg/cip"
	"github.com/cipforge/adapter/pkg/eip"
)

// ErrSessionClosed signals the caller (the TCP Session Handler) that the
// peer asked to unregister its session and the connection should be torn
// down. A malformed frame is reported with a different error.
var ErrSessionClosed = errors.New("encap: session closed")

// Identity carries the values the adapter reports for ListIdentity. The
// Identity Object keeps its own copy (identity.Identity), which cmd/adapter
// builds from the same config.
type Identity struct {
	VendorID     uint16
	DeviceType   uint16
	ProductCode  uint16
	RevisionMaj  uint8
	RevisionMin  uint8
	Status       uint16
	SerialNumber uint32
	ProductName  string
}

// Adapter wires encapsulation framing to the Message Router. It owns no
// sockets; it only ever sees the bytes the event loop hands it and returns
// the bytes to send back, per the C5 contract.
type Adapter struct {
	router   *cip.Router
	identity Identity

	mu         sync.Mutex
	sessions   map[int]uint32 // tcp fd -> session handle
	nextHandle uint32
}

// New creates an Adapter bound to router, reporting identity on discovery
// requests.
func New(router *cip.Router, identity Identity) *Adapter {
	return &Adapter{
		router:     router,
		identity:   identity,
		sessions:   make(map[int]uint32),
		nextHandle: 1,
	}
}

// HandleExplicitTCP implements the core's TCP entry point: parse the
// 24-byte encapsulation header already sitting in buf, dispatch by
// command, and write the reply back into buf in place.
func (a *Adapter) HandleExplicitTCP(fd int, buf []byte, length int) (int, error) {
	if length < eip.HeaderSize {
		return 0, errors.New("encap: frame shorter than encapsulation header")
	}
	header := &eip.EncapsulationHeader{}
	if err := header.Decode(bytes.NewReader(buf[:eip.HeaderSize])); err != nil {
		return 0, err
	}
	data := buf[eip.HeaderSize:length]

	switch header.Command {
	case eip.CommandRegisterSession:
		return a.handleRegisterSession(fd, header, buf)
	case eip.CommandUnregisterSession:
		a.mu.Lock()
		delete(a.sessions, fd)
		a.mu.Unlock()
		return 0, ErrSessionClosed
	case eip.CommandSendRRData:
		respData, status := a.handleSendRRData(data)
		return a.writeReply(header, status, respData, buf)
	case eip.CommandSendUnitData:
		respData, status := a.handleSendUnitData(data)
		return a.writeReply(header, status, respData, buf)
	case eip.CommandListServices:
		respData, _ := eip.EncodeListServicesResponse(a.listServices())
		return a.writeReply(header, eip.StatusSuccess, respData, buf)
	case eip.CommandListIdentity:
		respData, _ := eip.EncodeListIdentityResponse([]eip.ListIdentityItem{a.listIdentityItem()})
		return a.writeReply(header, eip.StatusSuccess, respData, buf)
	default:
		return a.writeReply(header, eip.StatusInvalidCommand, nil, buf)
	}
}

// HandleExplicitUDP processes one encapsulation message at the front of buf
// (ListIdentity, ListServices, or an unconnected SendRRData request are the
// only commands meaningful over UDP) and reports how many bytes it consumed
// so the caller can advance to the next message batched in the datagram.
func (a *Adapter) HandleExplicitUDP(buf []byte) ([]byte, int) {
	if len(buf) < eip.HeaderSize {
		return nil, len(buf)
	}
	header := &eip.EncapsulationHeader{}
	if err := header.Decode(bytes.NewReader(buf[:eip.HeaderSize])); err != nil {
		return nil, len(buf)
	}
	total := eip.HeaderSize + int(header.Length)
	if total > len(buf) {
		total = len(buf)
	}
	data := buf[eip.HeaderSize:total]

	replyBuf := make([]byte, eip.HeaderSize+len(data)+64)
	var n int
	switch header.Command {
	case eip.CommandListIdentity:
		respData, _ := eip.EncodeListIdentityResponse([]eip.ListIdentityItem{a.listIdentityItem()})
		n, _ = a.writeReply(header, eip.StatusSuccess, respData, replyBuf)
	case eip.CommandListServices:
		respData, _ := eip.EncodeListServicesResponse(a.listServices())
		n, _ = a.writeReply(header, eip.StatusSuccess, respData, replyBuf)
	case eip.CommandSendRRData:
		respData, status := a.handleSendRRData(data)
		n, _ = a.writeReply(header, status, respData, replyBuf)
	default:
		n, _ = a.writeReply(header, eip.StatusInvalidCommand, nil, replyBuf)
	}

	return replyBuf[:n], total
}

func (a *Adapter) handleRegisterSession(fd int, header *eip.EncapsulationHeader, buf []byte) (int, error) {
	a.mu.Lock()
	handle := a.nextHandle
	a.nextHandle++
	a.sessions[fd] = handle
	a.mu.Unlock()

	respData := make([]byte, 4)
	binary.LittleEndian.PutUint16(respData[0:], 1) // protocol version
	binary.LittleEndian.PutUint16(respData[2:], 0) // options

	header.SessionHandle = eip.SessionHandle(handle)
	return a.writeReply(header, eip.StatusSuccess, respData, buf)
}

// writeReply encodes header (with Length/Status updated) followed by data
// into buf, returning the total reply length.
func (a *Adapter) writeReply(header *eip.EncapsulationHeader, status uint32, data []byte, buf []byte) (int, error) {
	header.Length = uint16(len(data))
	header.Status = status

	out := new(bytes.Buffer)
	if err := header.Encode(out); err != nil {
		return 0, err
	}
	out.Write(data)

	n := copy(buf, out.Bytes())
	return n, nil
}

// handleSendRRData handles one unconnected explicit message: interface
// handle(4) + timeout(2) + CPF{NullAddress, UnconnectedMessage}.
func (a *Adapter) handleSendRRData(data []byte) ([]byte, uint32) {
	if len(data) < 6 {
		return nil, eip.StatusIncorrectData
	}
	cpf, err := eip.DecodeCommonPacketFormat(data[6:])
	if err != nil {
		return nil, eip.StatusIncorrectData
	}
	item := cpf.FindItemByType(eip.ItemIDUnconnectedMessage)
	if item == nil {
		return nil, eip.StatusIncorrectData
	}

	_, resp := a.router.Notify(item.Data)
	respCPF := eip.NewCommonPacketFormat(
		eip.NewCPFItem(eip.ItemIDNullAddress, nil),
		eip.NewCPFItem(eip.ItemIDUnconnectedMessage, encodeMessageRouterResponse(resp)),
	)
	respBytes, err := respCPF.Encode()
	if err != nil {
		return nil, eip.StatusIncorrectData
	}

	out := make([]byte, 6+len(respBytes))
	copy(out[6:], respBytes)
	return out, eip.StatusSuccess
}

// handleSendUnitData handles one connected explicit message (Transport
// Class 3): interface handle(4) + timeout(2) + CPF{ConnectedAddress,
// ConnectedData}; the Connected Data Item carries a 16-bit sequence count
// ahead of the Message Router PDU.
func (a *Adapter) handleSendUnitData(data []byte) ([]byte, uint32) {
	if len(data) < 6 {
		return nil, eip.StatusIncorrectData
	}
	cpf, err := eip.DecodeCommonPacketFormat(data[6:])
	if err != nil {
		return nil, eip.StatusIncorrectData
	}
	addrItem := cpf.FindItemByType(eip.ItemIDConnectedAddress)
	dataItem := cpf.FindItemByType(eip.ItemIDConnectedData)
	if addrItem == nil || dataItem == nil || len(dataItem.Data) < 2 {
		return nil, eip.StatusIncorrectData
	}

	seqCount := binary.LittleEndian.Uint16(dataItem.Data[0:2])
	pdu := dataItem.Data[2:]

	_, resp := a.router.Notify(pdu)

	respDataBuf := new(bytes.Buffer)
	binary.Write(respDataBuf, binary.LittleEndian, seqCount)
	respDataBuf.Write(encodeMessageRouterResponse(resp))

	respCPF := eip.NewCommonPacketFormat(
		eip.NewCPFItem(eip.ItemIDConnectedAddress, addrItem.Data),
		eip.NewCPFItem(eip.ItemIDConnectedData, respDataBuf.Bytes()),
	)
	respBytes, err := respCPF.Encode()
	if err != nil {
		return nil, eip.StatusIncorrectData
	}

	out := make([]byte, 6+len(respBytes))
	copy(out[6:], respBytes)
	return out, eip.StatusSuccess
}

func encodeMessageRouterResponse(r *cip.Response) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, r.ReplyService)
	binary.Write(buf, binary.LittleEndian, r.Reserved)
	binary.Write(buf, binary.LittleEndian, r.GeneralStatus)
	binary.Write(buf, binary.LittleEndian, r.ExtStatusSize)
	for _, ext := range r.ExtStatus {
		binary.Write(buf, binary.LittleEndian, ext)
	}
	buf.Write(r.Data)
	return buf.Bytes()
}

func (a *Adapter) listIdentityItem() eip.ListIdentityItem {
	return eip.ListIdentityItem{
		TypeID:        eip.ItemIDListIdentity,
		EncapsVersion: 1,
		VendorID:      a.identity.VendorID,
		DeviceType:    a.identity.DeviceType,
		ProductCode:   a.identity.ProductCode,
		Revision:      [2]byte{a.identity.RevisionMaj, a.identity.RevisionMin},
		Status:        a.identity.Status,
		SerialNumber:  a.identity.SerialNumber,
		ProductName:   a.identity.ProductName,
		State:         0,
	}
}

func (a *Adapter) listServices() []eip.ListServicesItem {
	return []eip.ListServicesItem{
		{
			TypeID:          eip.ItemIDListServices,
			Version:         1,
			CapabilityFlags: 0x0020, // supports CIP encapsulation over TCP
			Name:            "Communications",
		},
	}
}
