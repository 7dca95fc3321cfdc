package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every configuration variable. Nested keys are joined
// with a double underscore: MOTIONCRM_STORE__BACKEND=firestore.
const EnvPrefix = "MOTIONCRM_"

type Config struct {
	Primary  Primary        `koanf:"primary" validate:"required"`
	Server   ServerConfig   `koanf:"server" validate:"required"`
	Store    StoreConfig    `koanf:"store" validate:"required"`
	Identity IdentityConfig `koanf:"identity" validate:"required"`
	Leads    LeadsConfig    `koanf:"leads" validate:"required"`
	Log      LogConfig      `koanf:"log" validate:"required"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required,oneof=development staging production"`
}

type ServerConfig struct {
	Port               string `koanf:"port" validate:"required,numeric"`
	ReadTimeout        int    `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout       int    `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout        int    `koanf:"idle_timeout" validate:"gt=0"`
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`
	// SessionKey is a hex-encoded AES-256 key sealing session cookies. When
	// empty a random key is generated and sessions do not survive a restart.
	SessionKey    string `koanf:"session_key" validate:"omitempty,hexadecimal,len=64"`
	SecureCookies bool   `koanf:"secure_cookies"`
}

type StoreConfig struct {
	Backend              string `koanf:"backend" validate:"required,oneof=embedded remote firestore mongo"`
	DataDir              string `koanf:"data_dir" validate:"required"`
	Addr                 string `koanf:"addr" validate:"required_if=Backend remote"`
	DisableTLS           bool   `koanf:"disable_tls"`
	StrictIndexes        bool   `koanf:"strict_indexes"`
	FirestoreProject     string `koanf:"firestore_project" validate:"required_if=Backend firestore"`
	FirestoreCredentials string `koanf:"firestore_credentials"`
	MongoURI             string `koanf:"mongo_uri" validate:"required_if=Backend mongo"`
	MongoDatabase        string `koanf:"mongo_database" validate:"required"`
	DaemonPort           string `koanf:"daemon_port" validate:"required,numeric"`
	DaemonHTTPPort       string `koanf:"daemon_http_port" validate:"required,numeric"`
}

type IdentityConfig struct {
	SessionTTL        int    `koanf:"session_ttl" validate:"gt=0"` // minutes
	SessionBackend    string `koanf:"session_backend" validate:"required,oneof=memory redis"`
	RedisAddr         string `koanf:"redis_addr" validate:"required_if=SessionBackend redis"`
	RedisPassword     string `koanf:"redis_password"`
	RedisDB           int    `koanf:"redis_db" validate:"gte=0"`
	BootstrapEmail    string `koanf:"bootstrap_email" validate:"omitempty,email"`
	BootstrapPassword string `koanf:"bootstrap_password" validate:"omitempty,min=8"`
}

type LeadsConfig struct {
	// Collections is the comma separated, ordered list of candidate lead
	// collections probed by the dashboard.
	Collections string `koanf:"collections" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

// Defaults returns the configuration used for every key the environment
// does not set.
func Defaults() Config {
	return Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15,
			WriteTimeout: 30,
			IdleTimeout:  60,
		},
		Store: StoreConfig{
			Backend:        "embedded",
			DataDir:        "./data",
			Addr:           "localhost:7001",
			MongoDatabase:  "motioncrm",
			DaemonPort:     "7001",
			DaemonHTTPPort: "7002",
		},
		Identity: IdentityConfig{
			SessionTTL:     12 * 60,
			SessionBackend: "memory",
		},
		Leads: LeadsConfig{
			Collections: "leads,forms,submissions,contacts,formSubmissions",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig loads the configuration from environment variables using koanf
// on top of Defaults, then validates it.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	mainConfig := Defaults()
	if err := k.Unmarshal("", &mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	if err := mainConfig.Validate(); err != nil {
		return nil, err
	}
	return &mainConfig, nil
}

// Validate checks struct tags plus the rules that span fields.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Identity.BootstrapEmail == "") != (c.Identity.BootstrapPassword == "") {
		return errors.New("invalid config: identity bootstrap_email and bootstrap_password must be set together")
	}
	if len(c.Leads.Candidates()) == 0 {
		return errors.New("invalid config: leads collections must name at least one collection")
	}
	return nil
}

// Candidates returns the ordered candidate lead collections.
func (l LeadsConfig) Candidates() []string {
	return splitList(l.Collections)
}

// Origins returns the allowed CORS origins.
func (s ServerConfig) Origins() []string {
	return splitList(s.CORSAllowedOrigins)
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (s ServerConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// TTL returns the session lifetime.
func (i IdentityConfig) TTL() time.Duration {
	return time.Duration(i.SessionTTL) * time.Minute
}

// IsProduction reports whether the process runs in the production env.
func (c *Config) IsProduction() bool {
	return c.Primary.Env == "production"
}

// Hostname is used to tag log lines and audit entries.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
