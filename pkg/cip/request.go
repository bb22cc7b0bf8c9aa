package cip

// Request is a parsed inbound CIP message: a service code, the electronic
// path naming its destination, and whatever payload follows the path.
type Request struct {
	Service    USINT
	Path       EPath
	Data       []byte
	PayloadLen int
}

// ParseRequest turns received bytes into a structured Request: the leading
// service byte, an EPath decoded by DecodeEPath, and the remaining payload.
// It mirrors the CIP request layout: service(1) | path_word_count(1) |
// path(2*word_count) | payload(...).
func ParseRequest(data []byte) (Request, error) {
	if len(data) < 1 {
		return Request{}, Error{Status: StatusPathSizeInvalid}
	}

	req := Request{Service: USINT(data[0])}
	rest := data[1:]

	path, consumed, err := DecodeEPath(rest)
	if err != nil {
		return Request{}, err
	}
	if consumed < 0 {
		return Request{}, Error{Status: StatusPathSegmentError}
	}

	req.Path = path
	req.PayloadLen = len(rest) - consumed
	if req.PayloadLen < 0 {
		return Request{}, Error{Status: StatusPathSizeInvalid}
	}
	req.Data = rest[consumed:]
	return req, nil
}
