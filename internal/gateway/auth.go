package gateway

import (
	"crypto/subtle"
	"net"
	"os"
	"sync"
	"time"

	"github.com/soyeahso/docent/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth resolves authentication credentials from config and environment.
// Precedence: config value, then env variable, then empty.
func ResolveAuth(cfg config.ServerAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode}

	auth.Token = cfg.Token
	if auth.Token == "" {
		auth.Token = os.Getenv("DOCENT_GATEWAY_TOKEN")
	}

	auth.Password = cfg.Password
	if auth.Password == "" {
		auth.Password = os.Getenv("DOCENT_GATEWAY_PASSWORD")
	}

	if auth.Mode == "" {
		if auth.Password != "" {
			auth.Mode = "password"
		} else {
			auth.Mode = "token"
		}
	}

	return auth
}

// Authorize checks the provided ConnectAuth against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if clientAuth == nil {
		return AuthResult{OK: false, Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case "token":
		if serverAuth.Token == "" {
			return AuthResult{OK: false, Reason: "server token not configured"}
		}
		if clientAuth.Token == "" {
			return AuthResult{OK: false, Reason: "token required"}
		}
		if !safeEqual(clientAuth.Token, serverAuth.Token) {
			return AuthResult{OK: false, Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: "token"}

	case "password":
		if serverAuth.Password == "" {
			return AuthResult{OK: false, Reason: "server password not configured"}
		}
		if clientAuth.Password == "" {
			return AuthResult{OK: false, Reason: "password required"}
		}
		if !safeEqual(clientAuth.Password, serverAuth.Password) {
			return AuthResult{OK: false, Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: "password"}

	default:
		return AuthResult{OK: false, Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual performs a constant-time string comparison. Length is checked
// with ConstantTimeEq so a mismatch does not leak the secret's length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authFailWindow = 5 * time.Minute
	authFailLimit  = 10
	authHostCap    = 10000 // tracked hosts, bounds memory under spray
)

// authThrottle slows credential guessing. Only failed handshakes count
// against a host, and checks have no side effects, so a legitimate
// client retrying after a typo is never charged for asking. Stale
// entries are pruned on touch rather than by a background sweeper.
type authThrottle struct {
	mu    sync.Mutex
	hosts map[string]*hostRecord
}

type hostRecord struct {
	fails    []time.Time
	lastSeen time.Time
}

func newAuthThrottle() *authThrottle {
	return &authThrottle{hosts: make(map[string]*hostRecord)}
}

// blocked reports whether addr has exhausted its failure budget inside
// the current window.
func (t *authThrottle) blocked(addr string) bool {
	host := hostOf(addr)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.hosts[host]
	if !ok {
		return false
	}
	rec.prune(time.Now().Add(-authFailWindow))
	if len(rec.fails) == 0 {
		delete(t.hosts, host)
		return false
	}
	return len(rec.fails) >= authFailLimit
}

// fail charges one failed handshake to addr.
func (t *authThrottle) fail(addr string) {
	host := hostOf(addr)
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.hosts[host]
	if !ok {
		if len(t.hosts) >= authHostCap {
			t.evictIdlest()
		}
		rec = &hostRecord{}
		t.hosts[host] = rec
	}
	rec.prune(now.Add(-authFailWindow))
	rec.fails = append(rec.fails, now)
	rec.lastSeen = now
}

// evictIdlest drops the host least recently charged. Caller holds the lock.
func (t *authThrottle) evictIdlest() {
	var victim string
	var idle time.Time
	for host, rec := range t.hosts {
		if victim == "" || rec.lastSeen.Before(idle) {
			victim = host
			idle = rec.lastSeen
		}
	}
	if victim != "" {
		delete(t.hosts, victim)
	}
}

func (r *hostRecord) prune(cutoff time.Time) {
	kept := r.fails[:0]
	for _, ts := range r.fails {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.fails = kept
}

func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}
