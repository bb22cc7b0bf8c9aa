package eip

import (
	"bytes"
	"encoding/binary"
)

// Encode writes the device-side ListIdentity item: the same layout
// DecodeListIdentityResponse parses, produced here instead of consumed.
func (item *ListIdentityItem) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, item.TypeID)

	body := new(bytes.Buffer)
	binary.Write(body, binary.LittleEndian, item.EncapsVersion)
	binary.Write(body, binary.LittleEndian, item.SocketAddr)
	binary.Write(body, binary.LittleEndian, item.VendorID)
	binary.Write(body, binary.LittleEndian, item.DeviceType)
	binary.Write(body, binary.LittleEndian, item.ProductCode)
	binary.Write(body, binary.LittleEndian, item.Revision)
	binary.Write(body, binary.LittleEndian, item.Status)
	binary.Write(body, binary.LittleEndian, item.SerialNumber)
	binary.Write(body, binary.LittleEndian, uint8(len(item.ProductName)))
	body.WriteString(item.ProductName)
	binary.Write(body, binary.LittleEndian, item.State)

	binary.Write(buf, binary.LittleEndian, uint16(body.Len()))
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

// EncodeListIdentityResponse wraps items in the count-prefixed response
// body ListIdentity replies carry.
func EncodeListIdentityResponse(items []ListIdentityItem) ([]byte, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint16(len(items)))
	for i := range items {
		b, err := items[i].Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// Encode writes the device-side ListServices item.
func (item *ListServicesItem) Encode() ([]byte, error) {
	name := make([]byte, 16)
	copy(name, item.Name)

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, item.TypeID)
	binary.Write(buf, binary.LittleEndian, uint16(20))
	binary.Write(buf, binary.LittleEndian, item.Version)
	binary.Write(buf, binary.LittleEndian, item.CapabilityFlags)
	buf.Write(name)
	return buf.Bytes(), nil
}

// EncodeListServicesResponse wraps items in the count-prefixed response
// body ListServices replies carry.
func EncodeListServicesResponse(items []ListServicesItem) ([]byte, error) {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint16(len(items)))
	for i := range items {
		b, err := items[i].Encode()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
