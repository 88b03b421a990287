package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/observability/metrics"
)

// Rule binds a path pattern to a bucket shape. Patterns are matched in
// declaration order, first match wins. A pattern is either an exact path or
// a prefix ending in "*" (e.g. "/api/v1/portfolio/generate*").
type Rule struct {
	PathPattern  string
	Capacity     int64
	RefillTokens int64
	RefillPeriod time.Duration
}

func (r Rule) params() BucketParams {
	return BucketParams{
		Capacity:     r.Capacity,
		RefillTokens: r.RefillTokens,
		RefillPeriod: r.RefillPeriod,
	}
}

// Controller gates inbound requests before expensive work starts. Each
// client identity gets an independent bucket per matched rule, so exhausting
// the analyze quota leaves unrelated endpoints usable.
type Controller struct {
	rules    []Rule
	exempt   []string
	registry *Registry
}

// NewController creates a controller over the given ordered rules.
func NewController(rules []Rule, exemptPaths []string, registry *Registry) *Controller {
	return &Controller{
		rules:    rules,
		exempt:   exemptPaths,
		registry: registry,
	}
}

// Admit checks whether a request to path from clientIdentity may proceed.
// Exempt and unmatched paths are always admitted without touching any
// bucket.
func (c *Controller) Admit(path, clientIdentity string) Decision {
	for _, pattern := range c.exempt {
		if matchPattern(pattern, path) {
			return Decision{Allowed: true, Exempt: true}
		}
	}

	rule, ok := c.findRule(path)
	if !ok {
		return Decision{Allowed: true, Exempt: true}
	}

	key := clientIdentity + ":" + rule.PathPattern
	decision := c.registry.Consume(key, rule.params(), 1)
	decision.Rule = rule.PathPattern
	metrics.RecordAdmission(rule.PathPattern, decision.Allowed)

	if !decision.Allowed {
		observability.Warnf("Rate limit exceeded for %s on %s (retry after %s)",
			clientIdentity, path, decision.RetryAfter.Round(time.Second))
	}
	return decision
}

func (c *Controller) findRule(path string) (Rule, bool) {
	for _, rule := range c.rules {
		if matchPattern(rule.PathPattern, path) {
			return rule, true
		}
	}
	return Rule{}, false
}

func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(path, prefix)
	}
	return pattern == path
}

// ClientIdentity derives the rate limit identity for a request. Precedence:
// first X-Forwarded-For entry, then X-Real-IP, then the transport peer
// address. First non-empty source wins.
func ClientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
