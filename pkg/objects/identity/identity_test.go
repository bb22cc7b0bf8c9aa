package identity

import (
	"testing"

	"github.com/cipforge/adapter/pkg/cip"
)

func pathWithAttribute(attr cip.UINT) cip.EPath {
	return cip.EPath{HasAttribute: true, AttributeID: attr}
}

func TestObject_GetAttributeSingle_VendorID(t *testing.T) {
	o := New(Identity{VendorID: 1337, ProductName: "cipforge-adapter"})
	req := &cip.Request{Service: cip.ServiceGetAttributeSingle, Path: pathWithAttribute(AttrVendorID)}
	resp := &cip.Response{}

	outcome := o.Notify(nil, req, resp)

	if outcome != cip.OkReplied {
		t.Fatalf("outcome = %v, want OkReplied", outcome)
	}
	if resp.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", resp.GeneralStatus)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("data length = %d, want 2", len(resp.Data))
	}
}

func TestObject_GetAttributeSingle_UnknownAttribute(t *testing.T) {
	o := New(Identity{})
	req := &cip.Request{Service: cip.ServiceGetAttributeSingle, Path: pathWithAttribute(99)}
	resp := &cip.Response{}

	o.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusAttributeNotSupported {
		t.Errorf("status = 0x%X, want AttributeNotSupported", resp.GeneralStatus)
	}
}

func TestObject_GetAttributeAll_ConcatenatesAttributes(t *testing.T) {
	o := New(Identity{VendorID: 1, ProductName: "x"})
	req := &cip.Request{Service: cip.ServiceGetAttributeAll, Path: cip.EPath{}}
	resp := &cip.Response{}

	o.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", resp.GeneralStatus)
	}
	if len(resp.Data) == 0 {
		t.Error("expected non-empty Get_Attribute_All reply")
	}
}

func TestObject_Reset_AlwaysSucceeds(t *testing.T) {
	o := New(Identity{})
	req := &cip.Request{Service: cip.ServiceReset}
	resp := &cip.Response{}

	o.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusSuccess {
		t.Errorf("status = 0x%X, want success", resp.GeneralStatus)
	}
	if resp.ReplyService != (cip.ServiceReset | 0x80) {
		t.Errorf("reply service = 0x%X, want 0x%X", resp.ReplyService, cip.ServiceReset|0x80)
	}
}
