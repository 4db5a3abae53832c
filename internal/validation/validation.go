// Package validation provides input validation for server addresses, hash
// parameters and pool settings accepted from configuration, the CLI and the
// admin API.
package validation

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

// Error types for validation failures
var (
	ErrEmptyValue    = fmt.Errorf("value cannot be empty")
	ErrInvalidFormat = fmt.Errorf("invalid format")
	ErrValueTooLong  = fmt.Errorf("value exceeds maximum length")
	ErrOutOfRange    = fmt.Errorf("value is out of valid range")
	ErrInvalidHost   = fmt.Errorf("invalid host")
	ErrInvalidPort   = fmt.Errorf("invalid port")
)

// ValidationError provides detailed information about validation failures
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error
func NewValidationError(field, value, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// Constants for validation limits
const (
	MaxHostLength  = 253
	MaxKeyLength   = 4096
	MinPort        = 1
	MaxPort        = 65535
	MaxNumOwners   = 256
	MaxPoolSize    = 4096
	MaxHashVersion = 255
)

// hostnamePattern matches RFC 1123 host names
var hostnamePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidateHost validates a host name or IP address
func ValidateHost(host string) error {
	if host == "" {
		return NewValidationError("host", host, "host is required", ErrEmptyValue)
	}
	if len(host) > MaxHostLength {
		return NewValidationError("host", host, fmt.Sprintf("host exceeds maximum length of %d", MaxHostLength), ErrValueTooLong)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) {
		return NewValidationError("host", host, "host must be an IP address or a valid host name", ErrInvalidHost)
	}
	return nil
}

// ValidatePort validates a TCP port
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return NewValidationError("port", strconv.Itoa(port), fmt.Sprintf("port must be between %d and %d", MinPort, MaxPort), ErrInvalidPort)
	}
	return nil
}

// ValidateServer validates both parts of a server identity
func ValidateServer(s cluster.Server) error {
	if err := ValidateHost(s.Host); err != nil {
		return err
	}
	return ValidatePort(s.Port)
}

// ValidateServerAddress parses and validates a host:port address
func ValidateServerAddress(addr string) (cluster.Server, error) {
	if addr == "" {
		return cluster.Server{}, NewValidationError("server", addr, "server address is required", ErrEmptyValue)
	}
	s, err := cluster.ParseServer(addr)
	if err != nil {
		return cluster.Server{}, NewValidationError("server", addr, "server address must be host:port", ErrInvalidFormat)
	}
	if err := ValidateServer(s); err != nil {
		return cluster.Server{}, err
	}
	return s, nil
}

// ValidateHashSpace validates the modulus of the hash ring
func ValidateHashSpace(space int) error {
	if space <= 0 {
		return NewValidationError("hash_space", strconv.Itoa(space), "hash space must be positive", ErrOutOfRange)
	}
	return nil
}

// ValidateNumOwners validates the number of key owners
func ValidateNumOwners(n int) error {
	if n < 1 || n > MaxNumOwners {
		return NewValidationError("num_owners", strconv.Itoa(n), fmt.Sprintf("number of owners must be between 1 and %d", MaxNumOwners), ErrOutOfRange)
	}
	return nil
}

// ValidateHashVersion validates the range of a hash function version
func ValidateHashVersion(v int) error {
	if v < 1 || v > MaxHashVersion {
		return NewValidationError("hash_version", strconv.Itoa(v), fmt.Sprintf("hash version must be between 1 and %d", MaxHashVersion), ErrOutOfRange)
	}
	return nil
}

// ValidatePoolSize validates the maximum number of connections per server
func ValidatePoolSize(n int) error {
	if n < 1 || n > MaxPoolSize {
		return NewValidationError("max_active", strconv.Itoa(n), fmt.Sprintf("pool size must be between 1 and %d", MaxPoolSize), ErrOutOfRange)
	}
	return nil
}

// ValidateNonNegativeDuration validates durations where zero disables the feature
func ValidateNonNegativeDuration(field string, d time.Duration) error {
	if d < 0 {
		return NewValidationError(field, d.String(), "duration cannot be negative", ErrOutOfRange)
	}
	return nil
}

// ValidateKey validates a routing key received over the admin API
func ValidateKey(key string) error {
	if key == "" {
		return NewValidationError("key", key, "key is required", ErrEmptyValue)
	}
	if len(key) > MaxKeyLength {
		return NewValidationError("key", "", fmt.Sprintf("key exceeds maximum length of %d", MaxKeyLength), ErrValueTooLong)
	}
	return nil
}
