package cip

import "encoding/binary"

// Path segment type, logical segment type, and logical segment format bit
// patterns per the CIP electronic path encoding. Only the logical segment
// family is decoded (§4.2); any other segment type is an unsupported
// segment and yields PathSegmentError.
const (
	SegmentTypePort     byte = 0x00 // 000xxxxx
	SegmentTypeLogical  byte = 0x20 // 001xxxxx
	SegmentTypeNetwork  byte = 0x40 // 010xxxxx
	SegmentTypeSymbolic byte = 0x60 // 011xxxxx
	SegmentTypeData     byte = 0x80 // 100xxxxx
)

const (
	LogicalTypeClass     byte = 0x00
	LogicalTypeInstance  byte = 0x04
	LogicalTypeMember    byte = 0x08
	LogicalTypePoint     byte = 0x0C
	LogicalTypeAttribute byte = 0x10
	LogicalTypeSpecial   byte = 0x14
	LogicalTypeService   byte = 0x18
	LogicalTypeExtended  byte = 0x1C
)

const (
	LogicalFormat8Bit     byte = 0x00
	LogicalFormat16Bit    byte = 0x01
	LogicalFormat32Bit    byte = 0x02
	LogicalFormatReserved byte = 0x03
)

// EPath is a decoded electronic path: the class/instance/attribute address
// a request names. ClassID is always meaningful once HasClass is true;
// AttributeID is only meaningful when HasAttribute is true.
type EPath struct {
	ClassID       UINT
	InstanceID    uint32
	AttributeID   UINT
	HasClass      bool
	HasInstance   bool
	HasAttribute  bool
	ConnectPoint  UINT
	HasConnPoint  bool
}

// DecodeEPath decodes a word-count-prefixed padded EPath from data, per the
// CIP electronic path encoding: a leading word count followed by that many
// 16-bit words of logical/data segments. It returns the populated path and
// the number of bytes consumed (word count field plus segment bytes), or an
// error if a segment is malformed or of an unsupported type.
func DecodeEPath(data []byte) (EPath, int, error) {
	if len(data) < 1 {
		return EPath{}, -1, Error{Status: StatusPathSegmentError}
	}
	wordCount := int(data[0])
	byteLen := wordCount * 2
	if 1+byteLen > len(data) {
		return EPath{}, -1, Error{Status: StatusPathSizeInvalid}
	}

	path := EPath{}
	cursor := data[1 : 1+byteLen]
	consumed := 1

	for len(cursor) > 0 {
		segType := cursor[0] & 0xE0
		if segType != SegmentTypeLogical {
			return EPath{}, -1, Error{Status: StatusPathSegmentError}
		}

		logicalType := cursor[0] & 0x1C
		format := cursor[0] & 0x03

		var value uint32
		var n int
		switch format {
		case LogicalFormat8Bit:
			if len(cursor) < 2 {
				return EPath{}, -1, Error{Status: StatusPathSizeInvalid}
			}
			value = uint32(cursor[1])
			n = 2
		case LogicalFormat16Bit:
			if len(cursor) < 4 {
				return EPath{}, -1, Error{Status: StatusPathSizeInvalid}
			}
			value = uint32(binary.LittleEndian.Uint16(cursor[2:4]))
			n = 4
		case LogicalFormat32Bit:
			if len(cursor) < 6 {
				return EPath{}, -1, Error{Status: StatusPathSizeInvalid}
			}
			value = binary.LittleEndian.Uint32(cursor[2:6])
			n = 6
		default:
			return EPath{}, -1, Error{Status: StatusPathSegmentError}
		}

		switch logicalType {
		case LogicalTypeClass:
			path.ClassID = UINT(value)
			path.HasClass = true
		case LogicalTypeInstance:
			path.InstanceID = value
			path.HasInstance = true
		case LogicalTypeAttribute:
			path.AttributeID = UINT(value)
			path.HasAttribute = true
		case LogicalTypePoint:
			path.ConnectPoint = UINT(value)
			path.HasConnPoint = true
		default:
			return EPath{}, -1, Error{Status: StatusPathSegmentError}
		}

		cursor = cursor[n:]
		consumed += n
	}

	return path, consumed, nil
}
