package turn

import "github.com/pkg/errors"

var (
	// ErrSubmission is returned when the reply generator rejects an instruction.
	ErrSubmission = errors.New("reply submission failed")
	// ErrFallbackFailed means both the augmented reply and the fallback were rejected.
	// The turn is abandoned.
	ErrFallbackFailed = errors.New("fallback reply failed")
)

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) Is(target error) bool { return target == e.kind }

func withKind(kind error, err error) error {
	return &kindError{kind: kind, err: err}
}
