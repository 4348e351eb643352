package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Config holds every runtime knob of the SDK. All values come from the
// environment; each is independently overridable.
type Config struct {
	APIBaseURL string `env:"UNI360_API_URL,  default=https://api.uni360.app"`
	ClientID   string `env:"UNI360_CLIENT_ID, default=uni360-go"`
	LogLevel   string `env:"UNI360_LOG_LEVEL, default=info"`

	// Token resolution. UseStaticToken selects the operator-provided shared
	// credential; EnvToken is the per-process override checked after it.
	UseStaticToken bool   `env:"UNI360_USE_STATIC_TOKEN, default=false"`
	StaticToken    string `env:"UNI360_STATIC_TOKEN"`
	EnvToken       string `env:"UNI360_TOKEN"`
	TokenEndpoint  string `env:"UNI360_TOKEN_ENDPOINT, default=/api/v1/config/token/"`

	TokenCacheTTL time.Duration `env:"UNI360_TOKEN_CACHE_TTL, default=5m"`
	RefreshLead   time.Duration `env:"UNI360_REFRESH_LEAD,    default=5m"`
	HTTPTimeout   time.Duration `env:"UNI360_HTTP_TIMEOUT,    default=30s"`

	// CredentialsFile defaults to ~/.uni360/credentials.json when unset.
	CredentialsFile string `env:"UNI360_CREDENTIALS_FILE"`

	Google GoogleConfig
}

// GoogleConfig configures the Google sign-in flow used by the CLI.
type GoogleConfig struct {
	ClientID     string `env:"UNI360_GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"UNI360_GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `env:"UNI360_GOOGLE_REDIRECT_URL, default=http://localhost:8910/callback"`
}

// Load reads configuration from environment variables.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] envconfig.Process")
	}
	if cfg.CredentialsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "[config.Load] os.UserHomeDir")
		}
		cfg.CredentialsFile = filepath.Join(home, ".uni360", "credentials.json")
	}
	return &cfg, nil
}
