package assembly

import (
	"testing"

	"github.com/cipforge/adapter/pkg/cip"
)

func pathWithInstanceAttr(instance uint32, attr cip.UINT) cip.EPath {
	return cip.EPath{InstanceID: instance, HasAttribute: true, AttributeID: attr}
}

func TestObject_GetAttributeSingle_ReturnsRegisteredData(t *testing.T) {
	ao := NewAssemblyObject()
	ao.RegisterAssembly(100, []byte{0x01, 0x02, 0x03, 0x04})

	req := &cip.Request{Service: cip.ServiceGetAttributeSingle, Path: pathWithInstanceAttr(100, 3)}
	resp := &cip.Response{}

	outcome := ao.Notify(nil, req, resp)

	if outcome != cip.OkReplied {
		t.Fatalf("outcome = %v, want OkReplied", outcome)
	}
	if resp.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", resp.GeneralStatus)
	}
	if string(resp.Data) != "\x01\x02\x03\x04" {
		t.Errorf("data = %v, want the registered bytes", resp.Data)
	}
}

func TestObject_GetAttributeSingle_UnknownInstance(t *testing.T) {
	ao := NewAssemblyObject()
	req := &cip.Request{Service: cip.ServiceGetAttributeSingle, Path: pathWithInstanceAttr(999, 3)}
	resp := &cip.Response{}

	ao.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusObjectDoesNotExist {
		t.Errorf("status = 0x%X, want ObjectDoesNotExist", resp.GeneralStatus)
	}
}

func TestObject_SetAttributeSingle_SizeMismatchRejected(t *testing.T) {
	ao := NewAssemblyObject()
	ao.RegisterAssembly(150, make([]byte, 4))

	req := &cip.Request{
		Service: cip.ServiceSetAttributeSingle,
		Path:    pathWithInstanceAttr(150, 3),
		Data:    []byte{0x01, 0x02},
	}
	resp := &cip.Response{}

	ao.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusInvalidAttributeValue {
		t.Errorf("status = 0x%X, want InvalidAttributeValue", resp.GeneralStatus)
	}
}

func TestObject_SetAttributeSingle_UpdatesData(t *testing.T) {
	ao := NewAssemblyObject()
	ao.RegisterAssembly(150, make([]byte, 4))

	req := &cip.Request{
		Service: cip.ServiceSetAttributeSingle,
		Path:    pathWithInstanceAttr(150, 3),
		Data:    []byte{0xAA, 0xBB, 0xCC, 0xDD},
	}
	resp := &cip.Response{}

	ao.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusSuccess {
		t.Fatalf("status = 0x%X, want success", resp.GeneralStatus)
	}

	getReq := &cip.Request{Service: cip.ServiceGetAttributeSingle, Path: pathWithInstanceAttr(150, 3)}
	getResp := &cip.Response{}
	ao.Notify(nil, getReq, getResp)
	if string(getResp.Data) != "\xAA\xBB\xCC\xDD" {
		t.Errorf("data after set = %v, want the written bytes", getResp.Data)
	}
}

func TestObject_MissingAttributeSegmentRejected(t *testing.T) {
	ao := NewAssemblyObject()
	ao.RegisterAssembly(100, []byte{0x01})

	req := &cip.Request{Service: cip.ServiceGetAttributeSingle, Path: cip.EPath{InstanceID: 100}}
	resp := &cip.Response{}

	ao.Notify(nil, req, resp)

	if resp.GeneralStatus != cip.StatusPathSegmentError {
		t.Errorf("status = 0x%X, want PathSegmentError", resp.GeneralStatus)
	}
}
