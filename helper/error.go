package helper

import "fmt"

// NewError wraps err with the action that failed.
// The result keeps err in its chain for errors.Is and errors.As.
func NewError(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", action, err)
}
