package members

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// EnvConfig is the default Config implementation, populated from the
// environment.
type EnvConfig struct {
	SigningKey      string        `env:"MEMBERS_SIGNING_KEY"`
	TokenExpiration int           `env:"MEMBERS_TOKEN_EXPIRATION_HOURS" envDefault:"24"`
	Issuer          string        `env:"MEMBERS_TOKEN_ISSUER"           envDefault:"members"`
	Audience        []string      `env:"MEMBERS_TOKEN_AUDIENCE"         envDefault:"members"`
	BcryptCost      int           `env:"MEMBERS_BCRYPT_COST"            envDefault:"12"`
	GuestTTL        time.Duration `env:"MEMBERS_GUEST_TTL"              envDefault:"336h"`
	GuestPlan       string        `env:"MEMBERS_GUEST_PLAN"             envDefault:"guest"`
	SweepInterval   time.Duration `env:"MEMBERS_SWEEP_INTERVAL"         envDefault:"24h"`
}

var _ Config = (*EnvConfig)(nil)

// LoadConfigFromEnv parses the environment into an EnvConfig.
func LoadConfigFromEnv() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to parse environment")
	}

	if cfg.SigningKey == "" {
		return nil, goerrors.New("MEMBERS_SIGNING_KEY is required", goerrors.CategoryValidation)
	}

	return cfg, nil
}

func (c *EnvConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c *EnvConfig) GetTokenExpiration() int {
	return c.TokenExpiration
}

func (c *EnvConfig) GetIssuer() string {
	return c.Issuer
}

func (c *EnvConfig) GetAudience() []string {
	return c.Audience
}

func (c *EnvConfig) GetBcryptCost() int {
	return c.BcryptCost
}

func (c *EnvConfig) GetGuestTTL() time.Duration {
	return c.GuestTTL
}

func (c *EnvConfig) GetGuestPlan() string {
	return c.GuestPlan
}

func (c *EnvConfig) GetSweepInterval() time.Duration {
	return c.SweepInterval
}
