package domain

import (
	"fmt"
)

// NavigationError reports a failed navigation. Err is the underlying fetch
// failure and stays reachable through errors.Is / errors.As.
type NavigationError struct {
	Target uint64
	Err    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to block %d: %v", e.Target, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}
