package httpserver

const (
	ErrBadForm          = "bad form"
	ErrBadContentType   = "unsupported content type"
	ErrMissingFields    = "missing required fields"
	ErrInvalidSignature = "invalid signature"
	ErrEnqueueFailed    = "enqueue failed"
	ErrNoTenant         = "no salon configured for this number"
)
