package audit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopologyPath is the endpoint whose writes are recorded as topology events.
const TopologyPath = "/api/v1/topology"

// Middleware records every request that changes state and every request
// refused by authentication or rate limiting.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			eventType, ok := classify(r, wrapper.statusCode)
			if !ok {
				return
			}

			logger.LogEvent(&Event{
				Type:       eventType,
				RequestID:  requestID,
				SourceIP:   parseIP(r.RemoteAddr),
				UserAgent:  r.UserAgent(),
				Endpoint:   r.URL.Path,
				HTTPMethod: r.Method,
				HTTPStatus: wrapper.statusCode,
				Duration:   time.Since(start).Round(time.Millisecond).String(),
				Success:    wrapper.statusCode < 400,
			})
		})
	}
}

// classify picks the event type of a finished request. Reads that were
// served are not recorded.
func classify(r *http.Request, status int) (EventType, bool) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return EventAPIAuthFailure, true
	case http.StatusTooManyRequests:
		return EventAPIRateLimited, true
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "", false
	}

	if r.URL.Path == TopologyPath {
		if status < 400 {
			return EventTopologyUpdate, true
		}
		return EventTopologyRejected, true
	}
	return EventAPIAccess, true
}

// responseWrapper wraps http.ResponseWriter to capture the status code.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// parseIP extracts the IP address from a remote address string.
func parseIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = strings.Trim(remoteAddr, "[]")
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}
