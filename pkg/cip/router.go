package cip

// Router is the Message Router Object (C4): it owns the Class Registry and
// the single shared Response, looks up the destination class for a parsed
// request, and invokes the class's Notify handler.
type Router struct {
	Registry *Registry
	response Response
}

// NewRouter creates a Router backed by a fresh, empty Registry.
func NewRouter() *Router {
	return &Router{Registry: NewRegistry()}
}

// RegisterClass is a convenience wrapper around Registry.Register.
func (r *Router) RegisterClass(class *Class) error {
	return r.Registry.Register(class)
}

// Notify implements the four-step dispatch described for the Message
// Router: reset the shared response, parse the request, look up the class,
// and invoke its Notify. A class miss yields PathDestinationUnknown rather
// than ObjectDoesNotExist — conformance tooling expects the former.
func (r *Router) Notify(data []byte) (DispatchOutcome, *Response) {
	r.response.reset()

	req, err := ParseRequest(data)
	if err != nil {
		status := StatusPathSegmentError
		if cipErr, ok := err.(Error); ok {
			status = cipErr.Status
		}
		service := USINT(0)
		if len(data) > 0 {
			service = USINT(data[0])
		}
		r.response.ReplyService = service | 0x80
		r.response.GeneralStatus = status
		return OkReplied, &r.response
	}

	class := r.Registry.Lookup(req.Path.ClassID)
	if class == nil {
		r.response.ReplyService = req.Service | 0x80
		r.response.GeneralStatus = StatusPathDestinationUnknown
		return OkReplied, &r.response
	}

	return class.Object.Notify(class, &req, &r.response), &r.response
}
