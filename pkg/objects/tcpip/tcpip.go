// Package tcpip implements the CIP TCP/IP Interface Object (Class 0xF5,
// C12): read-only interface configuration (IP/mask/gateway) drawn from the
// process configuration, exposed as Get_Attribute_Single attributes.
package tcpip

import (
	"bytes"
	"encoding/binary"

	"github.com/cipforge/adapter/pkg/cip"
)

// Attribute IDs per the TCP/IP Interface Object definition (the subset this
// adapter reports; DHCP/DNS attributes are not modeled).
const (
	AttrStatus                cip.UINT = 1
	AttrConfigurationCapacity cip.UINT = 2
	AttrConfigurationControl  cip.UINT = 3
	AttrInterfaceConfig       cip.UINT = 5
	AttrHostName              cip.UINT = 6
)

// InterfaceConfig is the attribute-5 structure: IP, mask, gateway, and DNS
// addresses followed by a SHORT_STRING domain name, per the TCP/IP
// Interface Object's Interface Configuration attribute.
type InterfaceConfig struct {
	IPAddress   cip.UDINT
	NetworkMask cip.UDINT
	Gateway     cip.UDINT
	NameServer  cip.UDINT
	NameServer2 cip.UDINT
	DomainName  string
}

// MarshalCIP implements cip.Marshaler: the fixed-size address fields encode
// directly, and the variable-length domain name follows as a SHORT_STRING —
// a shape encoding/binary.Write cannot express on its own.
func (c InterfaceConfig) MarshalCIP() ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range []any{c.IPAddress, c.NetworkMask, c.Gateway, c.NameServer, c.NameServer2} {
		if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	buf.Write(encodeShortString(c.DomainName))
	return buf.Bytes(), nil
}

// Config is the configuration this object reports; cmd/adapter builds it
// from the YAML config's interface section.
type Config struct {
	IPAddress   cip.UDINT
	NetworkMask cip.UDINT
	Gateway     cip.UDINT
	HostName    string
}

// Object implements cip.CipObject for the TCP/IP Interface Object.
type Object struct {
	Config Config
}

// New creates a TCP/IP Interface Object reporting cfg.
func New(cfg Config) *Object {
	return &Object{Config: cfg}
}

// Notify implements cip.CipObject. Every attribute this object reports is
// read-only: Set_Attribute_Single always fails with
// AttributeNotSupported rather than silently accepting a configuration
// change the adapter never applies.
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
	case cip.ServiceSetAttributeSingle:
		resp.GeneralStatus = cip.StatusAttributeNotSupported
	default:
		resp.GeneralStatus = cip.StatusServiceNotSupported
	}
	return cip.OkReplied
}

func (o *Object) encodeAttribute(id cip.UINT) ([]byte, error) {
	switch id {
	case AttrStatus:
		return cip.Marshal(cip.UDINT(1)) // interface configured
	case AttrConfigurationCapacity:
		return cip.Marshal(cip.UDINT(0x30)) // BOOTP/static capable, no DHCP
	case AttrConfigurationControl:
		return cip.Marshal(cip.UDINT(0)) // static configuration
	case AttrInterfaceConfig:
		return cip.Marshal(InterfaceConfig{
			IPAddress:   o.Config.IPAddress,
			NetworkMask: o.Config.NetworkMask,
			Gateway:     o.Config.Gateway,
		})
	case AttrHostName:
		return encodeShortString(o.Config.HostName), nil
	default:
		return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
	}
}

func encodeShortString(s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	out := make([]byte, 1+len(s))
	out[0] = byte(len(s))
	copy(out[1:], s)
	return out
}
