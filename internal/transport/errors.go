package transport

import (
	"errors"
	"fmt"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
)

var (
	// ErrPoolExhausted is returned when no connection became available within MaxWait.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrServerUnreachable is returned when connections to a server cannot be established.
	ErrServerUnreachable = errors.New("server unreachable")

	// ErrPoolClosed is returned by Acquire once the pool is draining or destroyed.
	ErrPoolClosed = errors.New("connection pool closed")
)

// ServerUnreachableError carries the last failure seen while opening a connection.
type ServerUnreachableError struct {
	Server   cluster.Server
	Attempts int
	Err      error
}

func (e *ServerUnreachableError) Error() string {
	return fmt.Sprintf("server %s unreachable after %d attempt(s): %v", e.Server, e.Attempts, e.Err)
}

func (e *ServerUnreachableError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match ErrServerUnreachable
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}

// IsRecoverable reports whether err should make the caller try another server.
// PoolClosed is the result of racing a topology removal and is handled like
// an unreachable server.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrServerUnreachable) || errors.Is(err, ErrPoolClosed)
}
