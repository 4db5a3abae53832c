package hashring

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHashSpace       = errors.New("hash space must be positive")
	ErrInvalidNumOwners       = errors.New("number of owners must be at least 1")
	ErrUnsupportedHashVersion = errors.New("unsupported hash function version")
)

// UnsupportedHashVersionError represents a hash version outside the known set
type UnsupportedHashVersionError struct {
	Version HashVersion
}

// Error implements the error interface for UnsupportedHashVersionError
func (e *UnsupportedHashVersionError) Error() string {
	return fmt.Sprintf("hash function version %d is not supported", uint8(e.Version))
}

// Is allows errors.Is to match both ErrUnsupportedHashVersion and any UnsupportedHashVersionError
func (e *UnsupportedHashVersionError) Is(target error) bool {
	if target == ErrUnsupportedHashVersion {
		return true
	}
	var unsupported *UnsupportedHashVersionError
	return errors.As(target, &unsupported)
}
