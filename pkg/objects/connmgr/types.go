package connmgr

import (
	"github.com/cipforge/adapter/pkg/cip"
)

// Service Codes for Connection Manager
const (
	ServiceForwardClose      cip.USINT = 0x4E
	ServiceUnconnectedSend   cip.USINT = 0x52
	ServiceForwardOpen       cip.USINT = 0x54
	ServiceLargeForwardOpen  cip.USINT = 0x5B
	ServiceGetConnectionData cip.USINT = 0x56
	ServiceSearchConnection  cip.USINT = 0x57
	ServiceCloseConnection   cip.USINT = 0x58
)

// Status Codes
const (
	StatusConnectionFailure cip.USINT = 0x01
)

// Extended Status Codes for Connection Failure
const (
	ExtStatusConnectionInUse     cip.UINT = 0x0100
	ExtStatusTransportNotSupp    cip.UINT = 0x0103
	ExtStatusOwnershipConflict   cip.UINT = 0x0106
	ExtStatusConnectionNotFound  cip.UINT = 0x0109
	ExtStatusInvalidSegmentType  cip.UINT = 0x0315
	ExtStatusInvalidParam        cip.UINT = 0x0311 // Or similar
	ExtStatusVendorSpecificError cip.UINT = 0x031C
)

