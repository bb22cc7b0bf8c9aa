package encap

import (
	"bytes"
	"testing"

	"github.com/cipforge/adapter/pkg/cip"
	"github.com/cipforge/adapter/pkg/eip"
)

type stubObject struct{}

func (stubObject) Notify(class *cip.Class, req *cip.Request, resp *cip.Response) cip.DispatchOutcome {
	resp.ReplyService = req.Service | 0x80
	resp.GeneralStatus = cip.StatusSuccess
	resp.SetData([]byte{0xAA, 0xBB})
	return cip.OkReplied
}

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	router := cip.NewRouter()
	class := cip.NewClass(0x01, "Identity", 1, stubObject{})
	if err := router.RegisterClass(class); err != nil {
		t.Fatalf("RegisterClass: %v", err)
	}
	return New(router, Identity{
		VendorID:    1,
		ProductName: "test-device",
	})
}

func encodeHeader(t *testing.T, cmd eip.Command, dataLen int) []byte {
	t.Helper()
	h := eip.EncapsulationHeader{Command: cmd, Length: uint16(dataLen)}
	buf := new(bytes.Buffer)
	if err := h.Encode(buf); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	return buf.Bytes()
}

func TestAdapter_RegisterSessionAssignsHandle(t *testing.T) {
	a := newTestAdapter(t)

	frame := encodeHeader(t, eip.CommandRegisterSession, 4)
	frame = append(frame, make([]byte, 4)...)

	buf := make([]byte, 256)
	copy(buf, frame)

	n, err := a.HandleExplicitTCP(3, buf, len(frame))
	if err != nil {
		t.Fatalf("HandleExplicitTCP: %v", err)
	}
	if n < eip.HeaderSize {
		t.Fatalf("reply too short: %d", n)
	}

	var reply eip.EncapsulationHeader
	if err := reply.Decode(bytes.NewReader(buf[:eip.HeaderSize])); err != nil {
		t.Fatalf("decode reply header: %v", err)
	}
	if reply.Status != eip.StatusSuccess {
		t.Errorf("status = 0x%X, want success", reply.Status)
	}
	if reply.SessionHandle == 0 {
		t.Error("expected a nonzero session handle")
	}
}

func TestAdapter_UnregisterSessionReturnsErrSessionClosed(t *testing.T) {
	a := newTestAdapter(t)

	frame := encodeHeader(t, eip.CommandUnregisterSession, 0)
	buf := make([]byte, 64)
	copy(buf, frame)

	_, err := a.HandleExplicitTCP(3, buf, len(frame))
	if err != ErrSessionClosed {
		t.Errorf("err = %v, want ErrSessionClosed", err)
	}
}

func TestAdapter_SendRRDataDispatchesThroughRouter(t *testing.T) {
	a := newTestAdapter(t)

	// service(1) | path_word_count(1) | path(2 words: 8-bit class and instance segments) --
	// addresses class 0x01 instance 0 (the class-as-instance view).
	pdu := []byte{0x0E, 0x02, 0x20, 0x01, 0x24, 0x00}

	cpf, err := eip.NewCommonPacketFormat(
		eip.NewCPFItem(eip.ItemIDNullAddress, nil),
		eip.NewCPFItem(eip.ItemIDUnconnectedMessage, pdu),
	).Encode()
	if err != nil {
		t.Fatalf("encode cpf: %v", err)
	}

	body := make([]byte, 6)
	body = append(body, cpf...)

	frame := encodeHeader(t, eip.CommandSendRRData, len(body))
	frame = append(frame, body...)

	buf := make([]byte, 512)
	copy(buf, frame)

	n, err := a.HandleExplicitTCP(3, buf, len(frame))
	if err != nil {
		t.Fatalf("HandleExplicitTCP: %v", err)
	}

	var reply eip.EncapsulationHeader
	if err := reply.Decode(bytes.NewReader(buf[:eip.HeaderSize])); err != nil {
		t.Fatalf("decode reply header: %v", err)
	}
	if reply.Status != eip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", reply.Status)
	}

	respCPF, err := eip.DecodeCommonPacketFormat(buf[eip.HeaderSize+6 : n])
	if err != nil {
		t.Fatalf("decode reply cpf: %v", err)
	}
	item := respCPF.FindItemByType(eip.ItemIDUnconnectedMessage)
	if item == nil {
		t.Fatal("reply missing unconnected message item")
	}
	if item.Data[0] != 0x0E|0x80 {
		t.Errorf("reply service = 0x%X, want 0x8E", item.Data[0])
	}
}

func TestAdapter_ListIdentityOverUDP(t *testing.T) {
	a := newTestAdapter(t)

	frame := encodeHeader(t, eip.CommandListIdentity, 0)

	reply, consumed := a.HandleExplicitUDP(frame)
	if consumed != len(frame) {
		t.Errorf("consumed = %d, want %d", consumed, len(frame))
	}
	if len(reply) < eip.HeaderSize {
		t.Fatalf("reply too short: %d", len(reply))
	}

	var header eip.EncapsulationHeader
	if err := header.Decode(bytes.NewReader(reply[:eip.HeaderSize])); err != nil {
		t.Fatalf("decode reply header: %v", err)
	}
	items, err := eip.DecodeListIdentityResponse(reply[eip.HeaderSize:])
	if err != nil {
		t.Fatalf("decode identity response: %v", err)
	}
	if len(items) != 1 || items[0].ProductName != "test-device" {
		t.Errorf("unexpected identity items: %+v", items)
	}
}

func TestAdapter_UDPBatchAdvancesPastEachMessage(t *testing.T) {
	a := newTestAdapter(t)

	first := encodeHeader(t, eip.CommandListIdentity, 0)
	second := encodeHeader(t, eip.CommandListServices, 0)
	batch := append(append([]byte{}, first...), second...)

	_, consumed1 := a.HandleExplicitUDP(batch)
	if consumed1 != len(first) {
		t.Fatalf("first consumed = %d, want %d", consumed1, len(first))
	}

	_, consumed2 := a.HandleExplicitUDP(batch[consumed1:])
	if consumed2 != len(second) {
		t.Fatalf("second consumed = %d, want %d", consumed2, len(second))
	}
}
