package studies

import (
	"errors"
	"fmt"
)

// Not-found errors map to 404 at the API layer and are never retried.
var (
	ErrStudyNotFound         = errors.New("saving study not found")
	ErrRateTypeNotFound      = errors.New("rate type not found")
	ErrRateNotFound          = errors.New("rate not found")
	ErrSuggestedRateNotFound = errors.New("suggested rate not found")
)

// ValidationError reports a missing or out-of-range input. It maps to 422
// at the API layer.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
