// Package connector implements the HTTP clients for the Minecraft account
// services (profile lookup and session join) and the Discord webhook
// notifier.
package connector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultProfileURL is the Minecraft services profile endpoint.
	DefaultProfileURL = "https://api.minecraftservices.com/minecraft/profile"

	defaultHTTPTimeout = 10 * time.Second
	profileCacheTTL    = 5 * time.Minute
	maxErrorBody       = 512
)

// Identity is the Minecraft profile an access token belongs to.
type Identity struct {
	Name string `json:"name"`
	ID   string `json:"id"` // undashed UUID as returned by the service
}

// UUID returns the parsed profile id.
func (i Identity) UUID() (uuid.UUID, error) {
	return uuid.Parse(i.ID)
}

// ProfileResolver resolves access tokens to Minecraft profiles.
// Successful lookups are cached for a while, keyed by a hash of the token.
type ProfileResolver struct {
	mu     sync.RWMutex
	url    string
	client *http.Client
	cache  map[string]cachedIdentity
	now    func() time.Time
}

type cachedIdentity struct {
	identity  Identity
	expiresAt time.Time
}

// NewProfileResolver creates a resolver for profileURL. An empty URL selects
// DefaultProfileURL; a zero timeout selects the default.
func NewProfileResolver(profileURL string, timeout time.Duration) *ProfileResolver {
	if profileURL == "" {
		profileURL = DefaultProfileURL
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &ProfileResolver{
		url:    profileURL,
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]cachedIdentity),
		now:    time.Now,
	}
}

// Resolve fetches the profile for accessToken. Errors carry a stack trace
// (github.com/pkg/errors) so the CLI can print it.
func (r *ProfileResolver) Resolve(ctx context.Context, accessToken string) (Identity, error) {
	if strings.TrimSpace(accessToken) == "" {
		return Identity{}, errors.New("access token is empty")
	}

	key := tokenKey(accessToken)
	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && r.now().Before(cached.expiresAt) {
		return cached.identity, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return Identity{}, errors.Wrap(err, "failed to create profile request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Identity{}, errors.Wrap(err, "profile request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Identity{}, errors.Wrap(err, "failed to read profile response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.forget(key)
		return Identity{}, errors.Errorf("failed to get profile: %d %s", resp.StatusCode, snippet(body))
	}

	var profile struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return Identity{}, errors.Wrap(err, "failed to decode profile")
	}
	if profile.Name == "" || profile.ID == "" {
		return Identity{}, errors.Errorf("profile response missing name or id: %s", snippet(body))
	}
	identity := Identity{Name: profile.Name, ID: profile.ID}
	if _, err := identity.UUID(); err != nil {
		return Identity{}, errors.Wrapf(err, "profile id %q is not a UUID", profile.ID)
	}

	r.mu.Lock()
	r.cache[key] = cachedIdentity{identity: identity, expiresAt: r.now().Add(profileCacheTTL)}
	r.mu.Unlock()

	log.Debug().Str("mc_name", identity.Name).Msg("resolved profile")
	return identity, nil
}

func (r *ProfileResolver) forget(key string) {
	r.mu.Lock()
	delete(r.cache, key)
	r.mu.Unlock()
}

// CleanExpiredCache removes expired cache entries.
func (r *ProfileResolver) CleanExpiredCache() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, cached := range r.cache {
		if now.After(cached.expiresAt) {
			delete(r.cache, key)
			removed++
		}
	}
	return removed
}

// tokenKey hashes a token so raw tokens are never held as map keys.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
