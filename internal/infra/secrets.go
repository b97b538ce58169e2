package infra

import (
	"context"
	"sync"
	"time"

	"github.com/dogevents/platform/internal/provider"
)

// NewCachedCredentialSource wraps a credential fetch with a TTL cache.
// Credentials are fetched lazily, shared across callers, and
// re-fetched once the TTL elapses. This replaces ambient module-level
// secret state with an explicitly constructed source that has a
// defined refresh policy.
func NewCachedCredentialSource(fetch provider.CredentialSource, ttl time.Duration) provider.CredentialSource {
	var (
		mu        sync.Mutex
		cached    provider.Credentials
		fetchedAt time.Time
	)

	return func(ctx context.Context) (provider.Credentials, error) {
		mu.Lock()
		defer mu.Unlock()

		if !fetchedAt.IsZero() && time.Since(fetchedAt) < ttl {
			return cached, nil
		}

		creds, err := fetch(ctx)
		if err != nil {
			// Serve stale credentials over failing hard, if we have any.
			if !fetchedAt.IsZero() {
				return cached, nil
			}
			return provider.Credentials{}, err
		}

		cached = creds
		fetchedAt = time.Now()
		return cached, nil
	}
}

// EnvCredentialSource builds a CredentialSource from static config.
func EnvCredentialSource(cfg *Config) provider.CredentialSource {
	return provider.StaticCredentials(provider.Credentials{
		MerchantID: cfg.PaytrailMerchantID,
		Secret:     cfg.PaytrailSecret,
	})
}
