package routing

import (
	"fmt"
	"strconv"
	"time"

	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/transport"
	"github.com/codelaboratoryltd/hotroute/internal/validation"
)

// FallbackPolicy decides which servers GetTransportForKey tries when the
// primary owner cannot serve a connection.
type FallbackPolicy string

const (
	// FallbackAllOwners tries every owner in ring order, then the balancer.
	FallbackAllOwners FallbackPolicy = "all-owners"

	// FallbackPrimaryOnly tries the primary owner, then the balancer.
	FallbackPrimaryOnly FallbackPolicy = "primary-only"
)

// Property keys understood by ConfigFromProperties.
const (
	PropMaxActive          = "maxActive"
	PropMaxWait            = "maxWait"
	PropConnectTimeout     = "connectTimeout"
	PropTestOnBorrow       = "testOnBorrow"
	PropEvictionRunsMillis = "timeBetweenEvictionRunsMillis"
	PropMinEvictableIdle   = "minEvictableIdleTimeMillis"
	PropFallbackPolicy     = "fallbackPolicy"
)

// Config configures a TransportFactory.
type Config struct {
	Pool     transport.PoolConfig `yaml:"pool"`
	Fallback FallbackPolicy       `yaml:"fallback"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Pool:     transport.DefaultPoolConfig(),
		Fallback: FallbackAllOwners,
	}
}

// Validate checks the configuration for values the factory cannot run with.
func (c Config) Validate() error {
	if err := validation.ValidatePoolSize(c.Pool.MaxActive); err != nil {
		return err
	}
	durations := []struct {
		field string
		d     time.Duration
	}{
		{"max_wait", c.Pool.MaxWait},
		{"connect_timeout", c.Pool.ConnectTimeout},
		{"min_evictable_idle", c.Pool.MinEvictableIdle},
		{"eviction_interval", c.Pool.EvictionInterval},
		{"drain_timeout", c.Pool.DrainTimeout},
	}
	for _, d := range durations {
		if err := validation.ValidateNonNegativeDuration(d.field, d.d); err != nil {
			return err
		}
	}
	switch c.Fallback {
	case FallbackAllOwners, FallbackPrimaryOnly:
	default:
		return validation.NewValidationError("fallback", string(c.Fallback),
			fmt.Sprintf("fallback must be %q or %q", FallbackAllOwners, FallbackPrimaryOnly),
			validation.ErrInvalidFormat)
	}
	return nil
}

// ConfigFromProperties builds a Config and the initial server list from flat
// client properties. Missing keys keep their defaults; the server list is
// read from cluster.ServersProperty.
func ConfigFromProperties(props map[string]string) (Config, []cluster.Server, error) {
	cfg := DefaultConfig()

	if v, ok := props[PropMaxActive]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, nil, fmt.Errorf("invalid %s %q: %w", PropMaxActive, v, err)
		}
		cfg.Pool.MaxActive = n
	}
	if err := millisProperty(props, PropMaxWait, &cfg.Pool.MaxWait); err != nil {
		return cfg, nil, err
	}
	if err := millisProperty(props, PropConnectTimeout, &cfg.Pool.ConnectTimeout); err != nil {
		return cfg, nil, err
	}
	if err := millisProperty(props, PropEvictionRunsMillis, &cfg.Pool.EvictionInterval); err != nil {
		return cfg, nil, err
	}
	if err := millisProperty(props, PropMinEvictableIdle, &cfg.Pool.MinEvictableIdle); err != nil {
		return cfg, nil, err
	}
	if v, ok := props[PropTestOnBorrow]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, nil, fmt.Errorf("invalid %s %q: %w", PropTestOnBorrow, v, err)
		}
		cfg.Pool.TestOnBorrow = b
	}
	if v, ok := props[PropFallbackPolicy]; ok {
		cfg.Fallback = FallbackPolicy(v)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	servers, err := cluster.ParseServerList(props[cluster.ServersProperty])
	if err != nil {
		return cfg, nil, fmt.Errorf("invalid %s: %w", cluster.ServersProperty, err)
	}
	return cfg, servers, nil
}

// millisProperty parses a duration expressed in milliseconds. Negative
// values mean "disabled" and become zero.
func millisProperty(props map[string]string, key string, dst *time.Duration) error {
	v, ok := props[key]
	if !ok {
		return nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if ms < 0 {
		ms = 0
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}
