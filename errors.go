package mosaic

import "errors"

var (
	// ErrInvalidArgument is returned for malformed composition requests.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfCoverage is returned when a requested sector does not intersect
	// the catalog or a specific source.
	ErrOutOfCoverage = errors.New("out of coverage")

	// ErrDecoderUnavailable is returned when a reader's backend failed to
	// initialize.
	ErrDecoderUnavailable = errors.New("decoder unavailable")

	// ErrSourceUnreadable is returned when a source cannot be opened or
	// decoded.
	ErrSourceUnreadable = errors.New("source unreadable")

	// ErrResourceExhausted is returned when even the coarsest overview of a
	// source exceeds the configured working-set limit.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// A SourceError is an error associated with a single source. It matches
// ErrSourceUnreadable with errors.Is.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnreadable
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
