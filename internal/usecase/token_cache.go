package usecase

import (
	"sync"
	"time"
)

// tokenExpiryBuffer treats a token as expired this long before its real
// expiry. PesaPal tokens live ~5 minutes; the buffer absorbs network and
// clock latency so a token never dies mid-request.
const tokenExpiryBuffer = 4 * time.Minute

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenCache holds one gateway access token per business, process-local.
// Eviction is lazy on Get; there is no background sweeper. Concurrent
// refresh for the same business is allowed (last write wins): the worst
// case is one redundant Authenticate call, which beats serializing tenants
// behind a slow gateway.
type TokenCache struct {
	mu     sync.RWMutex
	tokens map[string]cachedToken
}

func NewTokenCache() *TokenCache {
	return &TokenCache{tokens: make(map[string]cachedToken)}
}

// Get returns the cached token for a business, or "" when there is none or
// the entry is within the expiry buffer. Expired entries are evicted.
func (c *TokenCache) Get(businessID string) string {
	c.mu.RLock()
	ct, ok := c.tokens[businessID]
	c.mu.RUnlock()
	if !ok {
		return ""
	}
	if !time.Now().Before(ct.expiresAt.Add(-tokenExpiryBuffer)) {
		c.Evict(businessID)
		return ""
	}
	return ct.token
}

func (c *TokenCache) Put(businessID, token string, expiresAt time.Time) {
	c.mu.Lock()
	c.tokens[businessID] = cachedToken{token: token, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *TokenCache) Evict(businessID string) {
	c.mu.Lock()
	delete(c.tokens, businessID)
	c.mu.Unlock()
}

func (c *TokenCache) EvictAll() {
	c.mu.Lock()
	c.tokens = make(map[string]cachedToken)
	c.mu.Unlock()
}
