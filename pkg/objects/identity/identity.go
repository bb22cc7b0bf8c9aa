// Package identity implements the CIP Identity Object (Class 0x01, C11):
// vendor, device type, product code/name, revision, and status as
// Get_Attribute_Single / Get_Attribute_All responses, plus a minimal Reset.
package identity

import (
	"github.com/cipforge/adapter/pkg/cip"
)

// Attribute IDs per the Identity Object definition.
const (
	AttrVendorID     cip.UINT = 1
	AttrDeviceType   cip.UINT = 2
	AttrProductCode  cip.UINT = 3
	AttrRevision     cip.UINT = 4
	AttrStatus       cip.UINT = 5
	AttrSerialNumber cip.UINT = 6
	AttrProductName  cip.UINT = 7
)

// revision is the on-the-wire Major.Minor Identity revision attribute.
type revision struct {
	Major cip.USINT
	Minor cip.USINT
}

// Identity holds the values this device reports. It mirrors encap.Identity
// field-for-field; cmd/adapter builds both from the same config so the
// encapsulation ListIdentity reply and this object's attributes never
// disagree.
type Identity struct {
	VendorID     cip.UINT
	DeviceType   cip.UINT
	ProductCode  cip.UINT
	RevisionMaj  cip.USINT
	RevisionMin  cip.USINT
	Status       cip.WORD
	SerialNumber cip.UDINT
	ProductName  string
}

// Object implements cip.CipObject for the Identity Object.
type Object struct {
	Identity Identity
}

// New creates an Identity Object reporting id.
func New(id Identity) *Object {
	return &Object{Identity: id}
}

// Notify implements cip.CipObject: Get_Attribute_Single and
// Get_Attribute_All read the configured identity values; Reset always
// succeeds without restarting anything (there is nothing in this process
// for a CIP Reset to meaningfully restart beyond the connection state the
// Connection Manager already owns).
func (o *Object) Notify(class *cip.Class, req *cip.Request, resp *cip.Response) cip.DispatchOutcome {
	resp.ReplyService = req.Service | 0x80

	switch req.Service {
	case cip.ServiceGetAttributeSingle:
		if !req.Path.HasAttribute {
			resp.GeneralStatus = cip.StatusPathSegmentError
			return cip.OkReplied
		}
		data, err := o.encodeAttribute(req.Path.AttributeID)
		if err != nil {
			resp.GeneralStatus = cip.StatusAttributeNotSupported
			return cip.OkReplied
		}
		resp.SetData(data)
		resp.GeneralStatus = cip.StatusSuccess
	case cip.ServiceGetAttributeAll:
		resp.SetData(o.encodeAll())
		resp.GeneralStatus = cip.StatusSuccess
	case cip.ServiceReset:
		resp.GeneralStatus = cip.StatusSuccess
	default:
		resp.GeneralStatus = cip.StatusServiceNotSupported
	}
	return cip.OkReplied
}

func (o *Object) encodeAttribute(id cip.UINT) ([]byte, error) {
	switch id {
	case AttrVendorID:
		return cip.Marshal(o.Identity.VendorID)
	case AttrDeviceType:
		return cip.Marshal(o.Identity.DeviceType)
	case AttrProductCode:
		return cip.Marshal(o.Identity.ProductCode)
	case AttrRevision:
		return cip.Marshal(revision{Major: o.Identity.RevisionMaj, Minor: o.Identity.RevisionMin})
	case AttrStatus:
		return cip.Marshal(o.Identity.Status)
	case AttrSerialNumber:
		return cip.Marshal(o.Identity.SerialNumber)
	case AttrProductName:
		return encodeShortString(o.Identity.ProductName), nil
	default:
		return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
	}
}

// encodeAll concatenates every attribute in ascending ID order, the
// Get_Attribute_All convention for objects without a custom layout.
func (o *Object) encodeAll() []byte {
	var out []byte
	for _, id := range []cip.UINT{AttrVendorID, AttrDeviceType, AttrProductCode, AttrRevision, AttrStatus, AttrSerialNumber, AttrProductName} {
		b, err := o.encodeAttribute(id)
		if err != nil {
			continue
		}
		out = append(out, b...)
	}
	return out
}

// encodeShortString writes a CIP SHORT_STRING: a one-byte length prefix
// followed by the raw characters.
func encodeShortString(s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out
}
