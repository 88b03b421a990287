// Package ghauth keeps the GitHub App installation credential fresh. One
// credential exists process-wide; callers read it through GetValid, which
// refreshes ahead of expiry and collapses concurrent refreshes into a single
// upstream call.
package ghauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gitfolio/gitfolio/pkg/faults"
	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/observability/metrics"
)

// Credential is a short-lived installation token. Replaced atomically on
// refresh, never partially mutated.
type Credential struct {
	Value     string
	ExpiresAt time.Time
}

// TokenIssuer performs the external credential-issuing operation.
type TokenIssuer interface {
	Issue(ctx context.Context) (Credential, error)
}

// CredentialCache serves a cached credential while it has more than
// safetyMargin of life left, and otherwise refreshes it exactly once no
// matter how many callers notice staleness at the same time.
type CredentialCache struct {
	issuer       TokenIssuer
	safetyMargin time.Duration

	group singleflight.Group

	mu      sync.RWMutex
	current Credential
}

// NewCredentialCache creates a cache over issuer. safetyMargin is how long
// before expiry a credential is already treated as stale.
func NewCredentialCache(issuer TokenIssuer, safetyMargin time.Duration) *CredentialCache {
	return &CredentialCache{
		issuer:       issuer,
		safetyMargin: safetyMargin,
	}
}

// GetValid returns a credential valid for at least the safety margin. When a
// refresh is required it is serialized through a single flight; all waiting
// callers receive the one refresh's result or its error.
func (c *CredentialCache) GetValid(ctx context.Context) (Credential, error) {
	if cred, ok := c.cached(time.Now()); ok {
		return cred, nil
	}

	v, err, _ := c.group.Do("installation-token", func() (interface{}, error) {
		// A waiter that queued behind a finished flight re-checks before
		// issuing again.
		if cred, ok := c.cached(time.Now()); ok {
			return cred, nil
		}

		observability.Infof("Refreshing GitHub App installation token")
		cred, err := c.issuer.Issue(ctx)
		metrics.RecordCredentialRefresh(err)
		if err != nil {
			return Credential{}, faults.Wrap(faults.KindCredentialUnavailable,
				"failed to obtain installation credential", err)
		}

		c.store(cred)
		observability.Infof("Installation token refreshed, expires at %s", cred.ExpiresAt.Format(time.RFC3339))
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (c *CredentialCache) cached(now time.Time) (Credential, bool) {
	c.mu.RLock()
	cred := c.current
	c.mu.RUnlock()

	if cred.Value == "" {
		return Credential{}, false
	}
	if !now.Before(cred.ExpiresAt.Add(-c.safetyMargin)) {
		return Credential{}, false
	}
	return cred, true
}

func (c *CredentialCache) store(cred Credential) {
	c.mu.Lock()
	c.current = cred
	c.mu.Unlock()
}
