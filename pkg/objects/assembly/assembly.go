package assembly

import (
	"sync"

	"github.com/cipforge/adapter/pkg/cip"
)

// AssemblyObject implements the CIP Assembly Object (Class 0x04)
type AssemblyObject struct {
	mu        sync.RWMutex
	instances map[uint32]*AssemblyInstance
}

// AssemblyInstance represents a single assembly instance (Input, Output, or Config)
type AssemblyInstance struct {
	ID   uint32
	Data []byte
}

// NewAssemblyObject creates a new Assembly Object
func NewAssemblyObject() *AssemblyObject {
	return &AssemblyObject{
		instances: make(map[uint32]*AssemblyInstance),
	}
}

// RegisterAssembly registers a new assembly instance
func (ao *AssemblyObject) RegisterAssembly(instanceID uint32, data []byte) {
	ao.mu.Lock()
	defer ao.mu.Unlock()
	ao.instances[instanceID] = &AssemblyInstance{
		ID:   instanceID,
		Data: data,
	}
}

// GetAttributeSingle handles Get_Attribute_Single (0x0E) service
func (ao *AssemblyObject) GetAttributeSingle(instanceID uint32, attrID uint16) ([]byte, error) {
	ao.mu.RLock()
	defer ao.mu.RUnlock()

	instance, ok := ao.instances[instanceID]
	if !ok {
		return nil, cip.Error{Status: cip.StatusObjectDoesNotExist}
	}

	if attrID == 3 { // Data
		// Return a copy of the data
		dataCopy := make([]byte, len(instance.Data))
		copy(dataCopy, instance.Data)
		return dataCopy, nil
	} else if attrID == 4 { // Size (Optional but useful)
		// Return size as UINT? Or UDINT? Spec says UINT usually.
		// Let's stick to Data (3) for now as it's the main one.
		return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
	}

	return nil, cip.Error{Status: cip.StatusAttributeNotSupported}
}

// SetAttributeSingle handles Set_Attribute_Single (0x10) service
func (ao *AssemblyObject) SetAttributeSingle(instanceID uint32, attrID uint16, data []byte) error {
	ao.mu.Lock()
	defer ao.mu.Unlock()

	instance, ok := ao.instances[instanceID]
	if !ok {
		return cip.Error{Status: cip.StatusObjectDoesNotExist}
	}

	if attrID == 3 { // Data
		if len(data) != len(instance.Data) {
			// Strict size check? Or allow partial?
			// Usually Assembly size is fixed.
			// Let's enforce size match for now.
			return cip.Error{Status: cip.StatusInvalidAttributeValue} // Or StatusNotEnoughData / TooMuchData
		}
		copy(instance.Data, data)
		return nil
	}

	return cip.Error{Status: cip.StatusAttributeNotSupported}
}

// Notify implements cip.CipObject. The router has already decoded the
// request path, so the instance and attribute IDs come straight off
// req.Path instead of a second, hand-rolled segment scan.
func (ao *AssemblyObject) Notify(class *cip.Class, req *cip.Request, resp *cip.Response) cip.DispatchOutcome {
	resp.ReplyService = req.Service | 0x80

	if !req.Path.HasAttribute {
		resp.GeneralStatus = cip.StatusPathSegmentError
		return cip.OkReplied
	}

	switch req.Service {
	case cip.ServiceGetAttributeSingle:
		value, err := ao.GetAttributeSingle(req.Path.InstanceID, uint16(req.Path.AttributeID))
		if err != nil {
			resp.GeneralStatus = statusFromError(err)
			return cip.OkReplied
		}
		resp.SetData(value)
		resp.GeneralStatus = cip.StatusSuccess
	case cip.ServiceSetAttributeSingle:
		if err := ao.SetAttributeSingle(req.Path.InstanceID, uint16(req.Path.AttributeID), req.Data); err != nil {
			resp.GeneralStatus = statusFromError(err)
			return cip.OkReplied
		}
		resp.GeneralStatus = cip.StatusSuccess
	default:
		resp.GeneralStatus = cip.StatusServiceNotSupported
	}
	return cip.OkReplied
}

func statusFromError(err error) cip.USINT {
	if cerr, ok := err.(cip.Error); ok {
		return cerr.Status
	}
	return cip.StatusServiceNotSupported
}
