package errcode

// Error code convention:
// - 0: no error
// - 4xxx: recoverable business errors (missing resources, rejected input)
// - 5xxx: system errors that interrupt the flow
//
// The codes ride in every error envelope and in worker notify payloads
// so clients can branch without parsing messages.
const (
	OK              = 0
	InvalidInput    = 4000
	Unauthenticated = 4001
	AccessDenied    = 4003
	ResourceMissing = 4004
	Duplicate       = 4009
	NotEnrolled     = 4030
	SystemError     = 5000
	UpstreamError   = 5002
)
