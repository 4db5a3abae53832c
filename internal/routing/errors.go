package routing

import "errors"

var (
	// ErrFactoryDestroyed is returned by every operation after Destroy.
	ErrFactoryDestroyed = errors.New("transport factory destroyed")

	// ErrNotStarted is returned when the factory is used before Start.
	ErrNotStarted = errors.New("transport factory not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("transport factory already started")

	// ErrNoServers is returned when the registry knows no server.
	ErrNoServers = errors.New("no servers available")
)
