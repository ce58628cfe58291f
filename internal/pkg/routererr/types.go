package routererr

// Status codes used throughout the router, including the 9xx extension
// range described in SPEC_FULL.md §6.
const (
	StatusBadRequest     = 900
	StatusAuth           = 901
	StatusNoWorkers      = 903
	StatusNotFound       = 904
	StatusTimeout        = 905
	StatusUpstreamFailed = 910
	StatusQuotaExceeded  = 929
)

// BadRequest covers manager/validation failures: unknown account, invalid
// x-cache header, admin request without x-account.
func BadRequest(reason, message string) *Error {
	return New(StatusBadRequest, reason, message)
}

// BadRequestf is BadRequest with a formatted message.
func BadRequestf(reason, format string, a ...any) *Error {
	return Newf(StatusBadRequest, reason, format, a...)
}

// Auth signals a failed x-token check.
func Auth(message string) *Error {
	return New(StatusAuth, "AUTH_FAILED", message)
}

// NoWorkers builds an error carrying the 903 no-workers code. The
// scheduler reports an empty or timed-out open race as BadRequest (900).
func NoWorkers(message string) *Error {
	return New(StatusNoWorkers, "NO_WORKERS", message)
}

// NotFound signals an unknown management resource or unrouted path.
func NotFound(reason, message string) *Error {
	return New(StatusNotFound, reason, message)
}

// Timeout signals the overall task timeout elapsed before completion.
func Timeout(message string) *Error {
	return New(StatusTimeout, "TIMEOUT", message)
}

// Upstream signals the upstream call produced no usable response.
func Upstream(message string) *Error {
	return New(StatusUpstreamFailed, "UPSTREAM_FAILED", message)
}

// QuotaExceeded signals a user's daily quota was exceeded.
func QuotaExceeded(message string) *Error {
	return New(StatusQuotaExceeded, "QUOTA_EXCEEDED", message)
}

// Routing signals Account.GetRoute denied the path (task-level error,
// surfaced to the caller as StatusUpstreamFailed per SPEC_FULL.md §7).
func Routing(message string) *Error {
	return New(StatusUpstreamFailed, "ROUTING_DENIED", message)
}

// Limits signals Account.LimitsExceeded denied the path (task-level
// error, same surfacing as Routing).
func Limits(message string) *Error {
	return New(StatusUpstreamFailed, "LIMITS_EXCEEDED", message)
}

// IsNotFound reports whether err is a StatusNotFound *Error.
func IsNotFound(err error) bool { return Code(err) == StatusNotFound }

// IsAuth reports whether err is a StatusAuth *Error.
func IsAuth(err error) bool { return Code(err) == StatusAuth }

// IsBadRequest reports whether err is a StatusBadRequest *Error.
func IsBadRequest(err error) bool { return Code(err) == StatusBadRequest }
