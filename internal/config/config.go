// Package config loads server settings from .env, the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds server settings. Flags override ROOTINE_* variables, which
// override built-in defaults.
type Config struct {
	Addr      string
	OpsAddr   string
	Driver    string
	DSN       string
	JWTKey    string
	AccessTTL time.Duration

	CertFile string
	KeyFile  string
	Insecure bool
	Dev      bool

	RedisURL    string
	AdminEmails []string

	ResetCron string
	ResetTZ   string

	// OpenAIKey enables GenerateRoutine; empty leaves it unavailable.
	OpenAIKey     string
	OpenAIModel   string
	OpenAIBaseURL string
}

// Location resolves ResetTZ; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.ResetTZ == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.ResetTZ)
}

// Load reads envFile (missing is fine), then parses args.
func Load(envFile string, args []string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var (
		c      Config
		admins string
	)
	set := flag.NewFlagSet("rootine-server", flag.ContinueOnError)
	set.SetOutput(io.Discard)
	set.StringVar(&c.Addr, "addr", env("ROOTINE_ADDR", ":8443"), "gRPC listen address")
	set.StringVar(&c.OpsAddr, "ops-addr", env("ROOTINE_OPS_ADDR", ":8080"), "health endpoint address, empty disables")
	set.StringVar(&c.Driver, "driver", env("ROOTINE_DRIVER", DriverPostgres), "store driver: postgres|sqlite")
	set.StringVar(&c.DSN, "dsn", env("ROOTINE_DSN", ""), "database DSN")
	set.StringVar(&c.JWTKey, "jwt-key", env("ROOTINE_JWT_KEY", ""), "HS256 signing key (required)")
	set.DurationVar(&c.AccessTTL, "access-ttl", envDuration("ROOTINE_ACCESS_TTL", 15*time.Minute), "access token TTL")
	set.StringVar(&c.CertFile, "tls-cert", env("ROOTINE_TLS_CERT", "cert.pem"), "TLS certificate (PEM)")
	set.StringVar(&c.KeyFile, "tls-key", env("ROOTINE_TLS_KEY", "key.pem"), "TLS private key (PEM)")
	set.BoolVar(&c.Insecure, "insecure", envBool("ROOTINE_INSECURE", false), "serve without TLS")
	set.BoolVar(&c.Dev, "dev", envBool("ROOTINE_DEV", false), "dev logger and server reflection")
	set.StringVar(&c.RedisURL, "redis-url", env("ROOTINE_REDIS_URL", ""), "redis URL for the login limiter")
	set.StringVar(&admins, "admin-emails", env("ROOTINE_ADMIN_EMAILS", ""), "comma-separated e-mails granted the admin role")
	set.StringVar(&c.ResetCron, "reset-cron", env("ROOTINE_RESET_CRON", "0 0 * * *"), "daily completion reset schedule")
	set.StringVar(&c.ResetTZ, "reset-tz", env("ROOTINE_RESET_TZ", "UTC"), "timezone for the reset schedule")
	set.StringVar(&c.OpenAIKey, "openai-key", env("ROOTINE_OPENAI_API_KEY", ""), "OpenAI API key for routine generation")
	set.StringVar(&c.OpenAIModel, "openai-model", env("ROOTINE_OPENAI_MODEL", "gpt-5-mini"), "model used for routine generation")
	set.StringVar(&c.OpenAIBaseURL, "openai-base-url", env("ROOTINE_OPENAI_BASE_URL", ""), "OpenAI-compatible endpoint, empty for the default")
	if err := set.Parse(args); err != nil {
		return nil, err
	}
	c.AdminEmails = splitList(admins)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.JWTKey == "" {
		return errors.New("missing jwt signing key (--jwt-key or ROOTINE_JWT_KEY)")
	}
	switch c.Driver {
	case DriverPostgres:
		if c.DSN == "" {
			return errors.New("postgres driver needs --dsn")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.AccessTTL <= 0 {
		return errors.New("access-ttl must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("reset-tz: %w", err)
	}
	return nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
