package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"golang.org/x/sync/singleflight"
)

// ErrNoTokenAvailable is returned when every resolution strategy has been
// tried and none produced a token. The caller must not issue the request and
// should prompt for re-authentication.
var ErrNoTokenAvailable = errors.New("no token available from any strategy")

// CredentialReader is the slice of the credential store the resolver needs.
type CredentialReader interface {
	AccessToken() string
}

// Config carries the resolver's knobs.
type Config struct {
	// UseStaticToken selects the operator-provided shared credential as the
	// first strategy; StaticToken is its value.
	UseStaticToken bool
	StaticToken    string

	// EnvToken is the per-process override, checked second.
	EnvToken string

	// EndpointURL is the absolute URL of the remote token-config endpoint,
	// the strategy of last resort. Empty disables it.
	EndpointURL string

	// CacheTTL bounds how long a resolved token is reused without re-running
	// any strategy. Zero means the 5 minute default.
	CacheTTL time.Duration
}

const defaultCacheTTL = 5 * time.Minute

// Resolver produces a bearer token by trying, in order: the static config
// token, the environment override, the stored user token, and finally the
// remote token-config endpoint. A strategy that errors is skipped. Concurrent
// resolutions share one underlying execution, and successful results are
// cached for the configured TTL.
type Resolver struct {
	cfg        Config
	store      CredentialReader
	httpClient *http.Client
	cache      *Cache
	group      singleflight.Group
	logger     zerolog.Logger
	nowFunc    func() time.Time
}

// ResolverOption mutates a Resolver at construction time.
type ResolverOption func(*Resolver)

// WithHTTPClient replaces the HTTP client used for the remote strategy.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.httpClient = client
	}
}

// WithNowFunc overrides the clock (for tests).
func WithNowFunc(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.nowFunc = now
	}
}

func NewResolver(cfg Config, store CredentialReader, logger zerolog.Logger, options ...ResolverOption) *Resolver {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	r := &Resolver{
		cfg:        cfg,
		store:      store,
		httpClient: http.DefaultClient,
		cache:      NewCache(),
		logger:     logger.With().Str("component", "token_resolver").Logger(),
		nowFunc:    time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Resolve returns a usable bearer token, from cache when fresh. Concurrent
// callers that arrive while a resolution is in flight await its result
// instead of starting their own; the first caller's context governs the
// underlying network call.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if token, ok := r.cache.Get(r.nowFunc(), r.cfg.CacheTTL); ok {
		return token, nil
	}

	result, err, _ := r.group.Do("resolve", func() (any, error) {
		// Re-check under the flight: a racing caller may have populated the
		// cache between our miss and the flight starting.
		if token, ok := r.cache.Get(r.nowFunc(), r.cfg.CacheTTL); ok {
			return token, nil
		}
		token, err := r.runStrategies(ctx)
		if err != nil {
			return "", err
		}
		r.cache.Put(token, r.nowFunc())
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// ForceRefresh drops the cached token so the next Resolve re-runs every
// strategy from the top.
func (r *Resolver) ForceRefresh() {
	r.cache.Clear()
}

func (r *Resolver) runStrategies(ctx context.Context) (string, error) {
	if r.cfg.UseStaticToken && r.cfg.StaticToken != "" {
		r.logger.Debug().Msg("using static config token")
		return r.cfg.StaticToken, nil
	}

	if r.cfg.EnvToken != "" {
		r.logger.Debug().Msg("using environment override token")
		return r.cfg.EnvToken, nil
	}

	if token := r.store.AccessToken(); token != "" {
		r.logger.Debug().Msg("using stored user token")
		return token, nil
	}

	if r.cfg.EndpointURL != "" {
		token, err := r.fetchRemote(ctx)
		if err == nil {
			r.logger.Debug().Msg("using remote config token")
			return token, nil
		}
		r.logger.Warn().Err(err).Msg("remote token fetch failed")
	}

	return "", ErrNoTokenAvailable
}

func (r *Resolver) fetchRemote(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.EndpointURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	token, ok := tokenFromPayload(body)
	if !ok {
		return "", errors.New("token endpoint response carried no recognized token field")
	}
	return token, nil
}

// tokenFromPayload extracts the token from the endpoint's JSON envelope. The
// backend has shipped it under several names over time, so all of
// access_token, token, data.access_token and data.token are recognized.
func tokenFromPayload(body []byte) (string, bool) {
	var envelope struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
		Data        struct {
			AccessToken string `json:"access_token"`
			Token       string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	for _, candidate := range []string{envelope.AccessToken, envelope.Token, envelope.Data.AccessToken, envelope.Data.Token} {
		if strings.TrimSpace(candidate) != "" {
			return candidate, true
		}
	}
	return "", false
}
