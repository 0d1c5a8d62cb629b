package errs

// Legacy integer result codes. Older callers of the connectivity wrapper
// compared against these instead of inspecting errors.
const (
	StatusOK                = 1
	StatusFailed            = 0
	StatusConnectionFailed  = -1
	StatusConfigFailed      = -2
	StatusDriverUnavailable = -3
)

// Status maps err to its legacy result code. A nil error is StatusOK.
// Auth failures during connect count as connection failures.
func Status(err error) int {
	if err == nil {
		return StatusOK
	}
	switch KindOf(err) {
	case ErrKindConnectionFailed, ErrKindPermissionDenied:
		return StatusConnectionFailed
	case ErrKindConfigFailed:
		return StatusConfigFailed
	case ErrKindDriverUnavailable:
		return StatusDriverUnavailable
	default:
		return StatusFailed
	}
}
