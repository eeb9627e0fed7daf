package wire

// Status is the transport-level outcome carried in a reply frame. It is
// distinct from remote faults, which travel inside the envelope.
type Status uint8

const (
	// StatusOK indicates the frame body holds a reply envelope.
	StatusOK Status = 0

	// StatusBadRequest indicates the request frame could not be decoded.
	StatusBadRequest Status = 1

	// StatusUnauthorized indicates the transport credentials were rejected.
	StatusUnauthorized Status = 2

	// StatusNotFound indicates no service listens on the requested path.
	StatusNotFound Status = 3

	// StatusUnsupportedMedia indicates the content type is not accepted.
	StatusUnsupportedMedia Status = 4

	// StatusInternal indicates the service failed before producing a reply.
	StatusInternal Status = 5

	// StatusUnavailable indicates the service is shutting down.
	StatusUnavailable Status = 6
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusUnsupportedMedia:
		return "UNSUPPORTED_MEDIA"
	case StatusInternal:
		return "INTERNAL"
	case StatusUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusOK
}

// HTTPStatus maps the status to the equivalent HTTP status code.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusOK:
		return 200
	case StatusBadRequest:
		return 400
	case StatusUnauthorized:
		return 401
	case StatusNotFound:
		return 404
	case StatusUnsupportedMedia:
		return 415
	case StatusUnavailable:
		return 503
	default:
		return 500
	}
}

// StatusFromHTTP maps an HTTP status code to a Status.
func StatusFromHTTP(code int) Status {
	switch code {
	case 200, 202:
		return StatusOK
	case 400:
		return StatusBadRequest
	case 401, 403:
		return StatusUnauthorized
	case 404:
		return StatusNotFound
	case 415:
		return StatusUnsupportedMedia
	case 503:
		return StatusUnavailable
	default:
		return StatusInternal
	}
}
