package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type window struct {
	count int
	until time.Time
}

// fixedWindow counts requests per key in windows of length per. Expired
// windows are dropped on every sweep so idle clients do not accumulate.
type fixedWindow struct {
	mu        sync.Mutex
	limit     int
	per       time.Duration
	windows   map[string]*window
	nextSweep time.Time
	now       func() time.Time
}

// allow records a request for key and reports whether it fits the window,
// plus the time left until the window resets.
func (f *fixedWindow) allow(key string) (bool, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if now.After(f.nextSweep) {
		for k, w := range f.windows {
			if now.After(w.until) {
				delete(f.windows, k)
			}
		}
		f.nextSweep = now.Add(f.per)
	}

	w, ok := f.windows[key]
	if !ok || now.After(w.until) {
		w = &window{until: now.Add(f.per)}
		f.windows[key] = w
	}
	if w.count >= f.limit {
		return false, w.until.Sub(now)
	}
	w.count++
	return true, 0
}

// RateLimit allows limit requests per client IP in each window of per.
// Rejected requests get 429 with Retry-After and the API error body.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	fw := &fixedWindow{limit: limit, per: per, windows: map[string]*window{}, now: time.Now}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := fw.allow(clientIPForRateLimit(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"}}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return r.RemoteAddr
}
