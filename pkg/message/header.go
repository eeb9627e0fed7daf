package message

// Well-known header names.
const (
	HeaderAction    = "Action"
	HeaderMessageID = "MessageID"
	HeaderRelatesTo = "RelatesTo"
	HeaderTo        = "To"
)

// Header is a single message header. Order of headers is preserved.
type Header struct {
	Name           string `json:"name" cbor:"1,keyasint" msgpack:"name"`
	Namespace      string `json:"ns,omitempty" cbor:"2,keyasint,omitempty" msgpack:"ns,omitempty"`
	Value          string `json:"value" cbor:"3,keyasint" msgpack:"value"`
	MustUnderstand bool   `json:"mustUnderstand,omitempty" cbor:"4,keyasint,omitempty" msgpack:"mu,omitempty"`
}

// Headers is an ordered header collection.
type Headers []Header

// Get returns the value of the first header with name.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if hdr.Name == name {
			return hdr.Value, true
		}
	}
	return "", false
}

// Set replaces the first header with the same name or appends one.
func (h *Headers) Set(hdr Header) {
	for i := range *h {
		if (*h)[i].Name == hdr.Name {
			(*h)[i] = hdr
			return
		}
	}
	*h = append(*h, hdr)
}

// Remove deletes every header with name.
func (h *Headers) Remove(name string) {
	out := (*h)[:0]
	for _, hdr := range *h {
		if hdr.Name != name {
			out = append(out, hdr)
		}
	}
	*h = out
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}
