package cip

// ClassKind distinguishes a regular Class from its meta-class companion.
// Modeling the meta-class back-edge as a tagged variant (rather than a
// Class whose Meta points to itself) keeps the registry free of an owning
// cycle: the meta-Class is a plain value reachable from its owner, never
// the reverse.
type ClassKind int

const (
	KindRegular ClassKind = iota
	KindMeta
)

// DispatchOutcome is the result of routing one request to an object.
type DispatchOutcome int

const (
	OkReplied DispatchOutcome = iota
	OkNoReply
	DispatchError
)

// CipObject is implemented by every pluggable CIP class (Identity, Assembly,
// Connection Manager, TCP/IP Interface, ...). Notify receives the owning
// Class so a handler can inspect instance metadata, the parsed request, and
// the shared response to fill; it returns how dispatch concluded.
type CipObject interface {
	Notify(class *Class, req *Request, resp *Response) DispatchOutcome
}

// Instance is one addressable member of a Class's insertion-ordered
// instance list. InstanceNumber 0 is reserved for the class-as-instance
// view and is never stored in Instances.
type Instance struct {
	InstanceNumber uint32
	Attributes     []byte
	Class          *Class
}

// Class is a registered CIP object class: an identifier, a handler, and an
// ordered list of instances. Every Class carries a meta-Class companion
// describing the class-level view of itself (see ClassKind).
type Class struct {
	ClassID   UINT
	Name      string
	Revision  UINT
	Kind      ClassKind
	Object    CipObject
	Meta      *Class
	Instances []*Instance
}

// NewClass creates a Class wired to object and builds its meta-class
// companion. The meta-class shares the object handler (class-level services
// like GetAttributeAll are dispatched to the same implementation) but is
// tagged KindMeta so a handler can tell which view it was invoked through.
func NewClass(classID UINT, name string, revision UINT, object CipObject) *Class {
	cls := &Class{
		ClassID:  classID,
		Name:     name,
		Revision: revision,
		Kind:     KindRegular,
		Object:   object,
	}
	cls.Meta = &Class{
		ClassID:  classID,
		Name:     name + " (meta)",
		Revision: revision,
		Kind:     KindMeta,
		Object:   object,
	}
	return cls
}

// AddInstance appends inst to the class's instance list and sets its
// backpointer, preserving the "every Instance's Class backpointer matches
// the Class that owns it" invariant.
func (c *Class) AddInstance(inst *Instance) {
	inst.Class = c
	c.Instances = append(c.Instances, inst)
}

// Instance returns the addressed instance: id 0 yields the class-as-instance
// view, otherwise a linear scan of the insertion-ordered instance list.
func (c *Class) Instance(id uint32) *Instance {
	if id == 0 {
		return &Instance{InstanceNumber: 0, Class: c}
	}
	for _, inst := range c.Instances {
		if inst.InstanceNumber == id {
			return inst
		}
	}
	return nil
}
