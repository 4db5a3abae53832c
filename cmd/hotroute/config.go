package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codelaboratoryltd/hotroute/internal/audit"
	"github.com/codelaboratoryltd/hotroute/internal/cluster"
	"github.com/codelaboratoryltd/hotroute/internal/routing"
)

// Config holds server configuration
type Config struct {
	ConfigFile  string
	Servers     string
	HTTPPort    int
	MetricsPort int
	LogLevel    string

	// Topology file pushed to the router whenever it changes
	TopologyFile string
	TopologyPoll time.Duration

	// Admin API protection
	APIKey    string
	RateLimit int // Max requests per minute per client

	// Audit log of admin API changes ("" disables, "-" is stdout)
	AuditLog  string
	AuditText bool

	// Pool settings, overriding the config file when set
	MaxActive int
	MaxWait   time.Duration
	Fallback  string
}

// fileConfig is the layout of the optional YAML config file.
type fileConfig struct {
	Servers []string       `yaml:"servers"`
	Routing routing.Config `yaml:"routing"`
}

// applyEnv lets environment variables fill flags left at their defaults.
func (c *Config) applyEnv() {
	if v := os.Getenv("HOTROUTE_CONFIG"); v != "" && c.ConfigFile == "" {
		c.ConfigFile = v
	}
	if v := os.Getenv("HOTROUTE_SERVERS"); v != "" && c.Servers == "" {
		c.Servers = v
	}
	if v := os.Getenv("HOTROUTE_TOPOLOGY_FILE"); v != "" && c.TopologyFile == "" {
		c.TopologyFile = v
	}
	if v := os.Getenv("HOTROUTE_API_KEY"); v != "" && c.APIKey == "" {
		c.APIKey = v
	}
	if v := os.Getenv("HOTROUTE_AUDIT_LOG"); v != "" && c.AuditLog == "" {
		c.AuditLog = v
	}
	if v := os.Getenv("HOTROUTE_MAX_ACTIVE"); v != "" && c.MaxActive == 0 {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxActive = n
		}
	}
}

// routingConfig builds the router configuration and initial server list
// from the config file, then the flags.
func (c *Config) routingConfig() (routing.Config, []cluster.Server, error) {
	rc := routing.DefaultConfig()
	var addrs []string

	if c.ConfigFile != "" {
		fc, err := loadConfigFile(c.ConfigFile)
		if err != nil {
			return rc, nil, err
		}
		rc = fc.Routing
		addrs = fc.Servers
	}

	if c.MaxActive > 0 {
		rc.Pool.MaxActive = c.MaxActive
	}
	if c.MaxWait > 0 {
		rc.Pool.MaxWait = c.MaxWait
	}
	if c.Fallback != "" {
		rc.Fallback = routing.FallbackPolicy(c.Fallback)
	}
	if err := rc.Validate(); err != nil {
		return rc, nil, err
	}

	if c.Servers != "" {
		addrs = []string{c.Servers}
	}
	servers, err := cluster.ParseServerList(strings.Join(addrs, ";"))
	if err != nil {
		return rc, nil, fmt.Errorf("invalid %s: %w", cluster.ServersProperty, err)
	}
	return rc, servers, nil
}

// auditLogger opens the audit log. It returns nil when auditing is off.
func (c *Config) auditLogger() (*audit.Logger, io.Closer, error) {
	if c.AuditLog == "" {
		return nil, nil, nil
	}

	ac := audit.DefaultConfig()
	ac.JSONFormat = !c.AuditText
	if host, err := os.Hostname(); err == nil {
		ac.RouterID = host
	}

	var closer io.Closer
	if c.AuditLog != "-" {
		f, err := os.OpenFile(c.AuditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		ac.Writer = f
		closer = f
	}
	return audit.NewLogger(ac), closer, nil
}

// loadConfigFile reads a YAML config file. Missing keys keep their defaults.
func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	fc := &fileConfig{Routing: routing.DefaultConfig()}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}
