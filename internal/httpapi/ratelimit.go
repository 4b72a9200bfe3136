package httpapi

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sawpanic/marketsim/internal/engerr"
)

// ipLimiter hands out a token-bucket rate.Limiter per client IP, so one
// noisy caller hammering /api/trade can't starve request-handling
// capacity for everyone else sharing this process.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), r: rate.Limit(perSecond), burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimitMiddleware wraps next with a per-IP token bucket, used on the
// trade-submission route (spec §4.8's trade gate is the one endpoint with
// a real cost to abuse: every call runs the full validation chain and,
// on success, a persistence commit).
func rateLimitMiddleware(limiter *ipLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !limiter.allow(host) {
			writeErr(w, engerr.New(engerr.InvalidArgument, "rate limit exceeded, slow down"))
			return
		}
		next(w, r)
	}
}
