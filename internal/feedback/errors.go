package feedback

// The lifecycle engine reports failures through four typed errors so callers
// can map them to the right HTTP status without string matching.

// ValidationError means a required field is missing or malformed, or a
// referenced user is unknown to the directory.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ForbiddenError means the acting user lacks the capability for the
// operation.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// NotFoundError means the record does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// ConflictError means the record's current status does not match the
// transition's expected pre-state, or a deletion precondition failed. A lost
// optimistic-concurrency race surfaces as this.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func validationf(msg string) error { return &ValidationError{Message: msg} }
func forbiddenf(msg string) error  { return &ForbiddenError{Message: msg} }
func notFoundf(msg string) error   { return &NotFoundError{Message: msg} }
func conflictf(msg string) error   { return &ConflictError{Message: msg} }
