// Package cluster holds the identity of cache cluster members as seen by the
// client routing layer.
package cluster

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	// ServersProperty is the configuration key carrying the static server list.
	ServersProperty = "hotrod-servers"

	// DefaultPort is used for list entries that omit a port.
	DefaultPort = 11222
)

var (
	ErrEmptyAddress = errors.New("server address cannot be empty")
	ErrInvalidPort  = errors.New("server port must be in range 1-65535")
)

// Server identifies a cluster member. It is a plain value and can be used as a map key.
type Server struct {
	Host string
	Port int
}

// NewServer returns a Server for host and port.
func NewServer(host string, port int) Server {
	return Server{Host: host, Port: port}
}

func (s Server) String() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IsZero reports whether s is the zero Server.
func (s Server) IsZero() bool {
	return s.Host == "" && s.Port == 0
}

// MarshalText renders the server as host:port.
func (s Server) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses host:port.
func (s *Server) UnmarshalText(text []byte) error {
	parsed, err := ParseServer(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseServer parses a host:port address. IPv6 hosts must be bracketed.
func ParseServer(addr string) (Server, error) {
	return parseServer(addr, 0)
}

func parseServer(addr string, defaultPort int) (Server, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Server{}, ErrEmptyAddress
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		if defaultPort == 0 {
			return Server{}, fmt.Errorf("invalid server address %q: %w", addr, err)
		}
		// No port given; fall back to the default one.
		host, portStr = strings.Trim(addr, "[]"), strconv.Itoa(defaultPort)
	}
	if host == "" {
		return Server{}, fmt.Errorf("invalid server address %q: %w", addr, ErrEmptyAddress)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Server{}, fmt.Errorf("invalid server address %q: %w", addr, ErrInvalidPort)
	}
	return Server{Host: host, Port: port}, nil
}

// ParseServerList parses the static server list property. Entries are
// separated by ';' or ',' and may omit the port, in which case DefaultPort
// is used. Duplicates are dropped keeping the first occurrence.
func ParseServerList(list string) ([]Server, error) {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ';' || r == ','
	})

	servers := make([]Server, 0, len(fields))
	for _, field := range fields {
		if strings.TrimSpace(field) == "" {
			continue
		}
		s, err := parseServer(field, DefaultPort)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return Dedup(servers), nil
}

// Dedup returns servers with duplicates removed, preserving first-seen order.
func Dedup(servers []Server) []Server {
	seen := make(map[Server]struct{}, len(servers))
	ret := make([]Server, 0, len(servers))
	for _, s := range servers {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		ret = append(ret, s)
	}
	return ret
}

// Set returns servers as a lookup set.
func Set(servers []Server) map[Server]struct{} {
	set := make(map[Server]struct{}, len(servers))
	for _, s := range servers {
		set[s] = struct{}{}
	}
	return set
}
