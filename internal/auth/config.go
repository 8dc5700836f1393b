package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// authEnv holds raw env values before post-parse validation.
type authEnv struct {
	Secret        string        `env:"REALM_JWT_SECRET"`
	Issuer        string        `env:"REALM_JWT_ISSUER" envDefault:"realmsync"`
	Audience      string        `env:"REALM_JWT_AUDIENCE" envDefault:"realmsync-world"`
	TokenTTL      time.Duration `env:"REALM_JWT_TTL" envDefault:"24h"`
	AllowPassword bool          `env:"REALM_AUTH_PASSWORD" envDefault:"true"`
}

// Config selects which verifiers the server runs.
type Config struct {
	Token         TokenConfig
	TokenTTL      time.Duration
	AllowPassword bool
}

// TokenEnabled reports whether a signing secret was configured.
func (c Config) TokenEnabled() bool { return len(c.Token.Secret) > 0 }

// LoadConfigFromEnv reads auth configuration.
func LoadConfigFromEnv() (Config, error) {
	var raw authEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse auth env: %w", err)
	}
	secret := strings.TrimSpace(raw.Secret)
	if secret != "" && len(secret) < 16 {
		return Config{}, fmt.Errorf("REALM_JWT_SECRET must be at least 16 bytes")
	}
	return Config{
		Token: TokenConfig{
			Secret:   []byte(secret),
			Issuer:   strings.TrimSpace(raw.Issuer),
			Audience: strings.TrimSpace(raw.Audience),
		},
		TokenTTL:      raw.TokenTTL,
		AllowPassword: raw.AllowPassword,
	}, nil
}

// NewVerifier builds the verifier chain for cfg.
func NewVerifier(cfg Config, accounts AccountStore) (Verifier, error) {
	var chain Chain
	if cfg.TokenEnabled() {
		tv, err := NewTokenVerifier(cfg.Token)
		if err != nil {
			return nil, err
		}
		chain = append(chain, tv)
	}
	if cfg.AllowPassword && accounts != nil {
		chain = append(chain, NewPasswordVerifier(accounts))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no auth method enabled: set REALM_JWT_SECRET or REALM_AUTH_PASSWORD")
	}
	return chain, nil
}
