package app

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minhnhutttt/la/internal/util"
)

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = util.NewID("req")
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		ip := clientIP(r, s.trustedProxies)
		if s.limiter != nil && r.Method != http.MethodOptions && !s.limiter.allow(ip) {
			s.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("request_id", requestID))
			writeError(writer, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded. Try again later.", nil)
		} else {
			next.ServeHTTP(writer, r)
		}

		elapsed := time.Since(started)
		route := routeTemplate(r.URL.Path)
		if s.metrics != nil {
			s.metrics.Request(r.Method, route, writer.status, elapsed.Seconds())
		}
		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

// unmatchedRoute labels every path the router does not serve.
const unmatchedRoute = "unmatched"

var knownRoutes = map[string]bool{
	"/api/health":                                 true,
	"/api/ready":                                  true,
	"/api/session":                                true,
	"/metrics":                                    true,
	"/api/questions/{id}/views":                   true,
	"/api/views/{viewId}":                         true,
	"/api/views/{viewId}/question/edit":           true,
	"/api/views/{viewId}/question/draft":          true,
	"/api/views/{viewId}/question/submit":         true,
	"/api/views/{viewId}/question/cancel":         true,
	"/api/views/{viewId}/answers":                 true,
	"/api/views/{viewId}/answers/compose":         true,
	"/api/views/{viewId}/answers/{answerId}/edit": true,
	"/api/views/{viewId}/answers/edit/draft":      true,
	"/api/views/{viewId}/answers/edit/submit":     true,
	"/api/views/{viewId}/answers/edit/cancel":     true,
}

// routeTemplate replaces ids in the path and maps anything else to a
// single label, so metric labels stay bounded.
func routeTemplate(path string) string {
	parts := splitPath(path)
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "questions":
			parts[i] = "{id}"
		case "views":
			parts[i] = "{viewId}"
		case "answers":
			if parts[i] != "edit" && parts[i] != "compose" {
				parts[i] = "{answerId}"
			}
		}
	}
	route := "/" + strings.Join(parts, "/")
	if !knownRoutes[route] {
		return unmatchedRoute
	}
	return route
}

// limiterIdleTTL bounds how long an idle client's limiter is kept. A
// bucket refills within a minute, so dropping it later loses no state.
const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu        sync.Mutex
	entries   map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	return &ipLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		idleTTL: limiterIdleTTL,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.evictIdle(now)
		l.lastSweep = now
	}
	entry, ok := l.entries[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()
	return entry.limiter.AllowN(now, 1)
}

func (l *ipLimiter) evictIdle(now time.Time) {
	for ip, entry := range l.entries {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.entries, ip)
		}
	}
}

func (l *ipLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// clientIP is the peer address unless the peer is a trusted proxy. Behind
// trusted proxies it is the right-most X-Forwarded-For hop that is not
// itself trusted.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	peer, err := netip.ParseAddr(remote)
	if err != nil || !isTrusted(peer, trusted) {
		return remote
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return remote
		}
		if !isTrusted(hop, trusted) {
			return hop.Unmap().String()
		}
	}
	return remote
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, prefix := range trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}
