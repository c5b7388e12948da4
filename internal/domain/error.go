package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrVersionConflict    = errors.New("snapshot version already exists")
	ErrUpstream           = errors.New("upstream dependency failed")
	ErrStorage            = errors.New("state store unavailable")
	ErrSessionTerminal    = errors.New("session already in a terminal state")
	ErrJobNotCancellable  = errors.New("job has already started")
	ErrUnknownStage       = errors.New("unknown workflow stage")
	ErrInvalidExecContext = errors.New("invalid query executor context")
)

// Category buckets every failure into the taxonomy surfaced to callers.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryConflict   Category = "conflict"
	CategoryUpstream   Category = "upstream"
	CategoryStorage    Category = "storage"
	CategoryInternal   Category = "internal"
)

// CategoryOf maps an error chain onto its taxonomy category. Failure payloads
// always carry the category, not just a free-form message.
func CategoryOf(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return CategoryValidation
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrJobNotCancellable):
		return CategoryConflict
	case errors.Is(err, ErrUpstream):
		return CategoryUpstream
	case errors.Is(err, ErrStorage):
		return CategoryStorage
	default:
		return CategoryInternal
	}
}
