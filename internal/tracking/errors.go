package tracking

import (
	"errors"
	"fmt"
)

var (
	ErrNothingToSync        = errors.New("no orders need a tracking update")
	ErrExtensionUnavailable = errors.New("browser extension is not available")
)

// ExtensionError explains why the extension check failed and what the user
// should do about it.
type ExtensionError struct {
	Advice string
	Err    error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Advice, e.Err)
}

func (e *ExtensionError) Unwrap() []error {
	return []error{ErrExtensionUnavailable, e.Err}
}
