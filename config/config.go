package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Store     StoreConfig     `yaml:"store"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	Notify    NotifyConfig    `yaml:"notify"`
	CORS      CORSConfig      `yaml:"cors"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	Debug           bool          `yaml:"debug"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig implements auth.Config
type AuthConfig struct {
	SigningKey      string        `yaml:"signing_key"`
	TokenExpiration time.Duration `yaml:"token_expiration"`
	Issuer          string        `yaml:"issuer"`
	Audience        []string      `yaml:"audience"`
	PasswordCost    int           `yaml:"password_cost"`
}

func (a AuthConfig) GetSigningKey() string {
	return a.SigningKey
}

func (a AuthConfig) GetTokenExpiration() time.Duration {
	return a.TokenExpiration
}

func (a AuthConfig) GetIssuer() string {
	return a.Issuer
}

func (a AuthConfig) GetAudience() []string {
	return a.Audience
}

type StoreConfig struct {
	Driver                 string        `yaml:"driver"`
	MongoURI               string        `yaml:"mongo_uri"`
	MongoDatabase          string        `yaml:"mongo_database"`
	MongoCollection        string        `yaml:"mongo_collection"`
	SQLiteDSN              string        `yaml:"sqlite_dsn"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout"`
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout"`
}

type LockoutConfig struct {
	Threshold     int           `yaml:"threshold"`
	Window        time.Duration `yaml:"window"`
	Backend       string        `yaml:"backend"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type NotifyConfig struct {
	SlackWebhookURL string        `yaml:"slack_webhook_url"`
	Timeout         time.Duration `yaml:"timeout"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type BootstrapConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the configuration used before any file or environment
// is applied. It has no signing key.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenExpiration: auth.DefaultTokenExpiration,
			Issuer:          "auth-guard",
			PasswordCost:    auth.DefaultPasswordCost,
		},
		Store: StoreConfig{
			MongoDatabase:          "authguard",
			MongoCollection:        "users",
			ConnectTimeout:         auth.DefaultConnectTimeout,
			ServerSelectionTimeout: auth.DefaultConnectTimeout,
		},
		Lockout: LockoutConfig{
			Threshold: auth.DefaultLockThreshold,
			Window:    auth.DefaultLockoutWindow,
			Backend:   BackendMemory,
		},
		Notify: NotifyConfig{
			Timeout: auth.DefaultNotifyTimeout,
		},
		Bootstrap: BootstrapConfig{
			Username: "admin",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Loader reads configuration from .env, an optional YAML file and the
// environment, in that order of precedence from lowest to highest.
type Loader struct {
	useDotEnv bool
	lookup    func(string) (string, bool)
}

// NewLoader returns a loader reading .env and the process environment
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookup:    os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithLookup overrides how environment variables are read
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookup = lookup
	}
	return l
}

// Load builds and validates the configuration. path may be empty.
func (l *Loader) Load(path string) (*Config, error) {
	if l.useDotEnv {
		// a missing .env is not an error
		_ = godotenv.Load()
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	cfg.applyEnv(l.lookup)
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is NewLoader().Load(path)
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("JWT_SECRET", &c.Auth.SigningKey)
	str("MONGODB_URI", &c.Store.MongoURI)
	str("MONGODB_DB", &c.Store.MongoDatabase)
	str("STORE_DRIVER", &c.Store.Driver)
	str("SQLITE_DSN", &c.Store.SQLiteDSN)
	str("SLACK_WEBHOOK_URL", &c.Notify.SlackWebhookURL)
	str("ADMIN_USERNAME", &c.Bootstrap.Username)
	str("ADMIN_PASSWORD", &c.Bootstrap.Password)
	str("ATTEMPTS_BACKEND", &c.Lockout.Backend)
	str("REDIS_ADDR", &c.Lockout.RedisAddr)
	str("REDIS_PASSWORD", &c.Lockout.RedisPassword)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("HTTP_ADDR", &c.Server.Addr)

	if v, ok := lookup("ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		c.CORS.AllowedOrigins = SplitList(v)
	}

	if v, ok := lookup("DEBUG"); ok {
		if debug, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Server.Debug = debug
		}
	}
}

// resolve picks the store driver when none was configured
func (c *Config) resolve() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		if c.Store.MongoURI != "" {
			c.Store.Driver = DriverMongo
		} else {
			c.Store.Driver = DriverSQLite
		}
	}
	c.Lockout.Backend = strings.ToLower(strings.TrimSpace(c.Lockout.Backend))
}

// SplitList splits a comma separated value, dropping empty entries
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration. A missing signing key is reported as
// auth.ErrConfigurationMissing.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		return auth.ErrConfigurationMissing.Clone().
			WithMetadata(map[string]any{"setting": "JWT_SECRET"})
	}

	sections := []validation.Validatable{c.Server, c.Auth, c.Store, c.Lockout, c.Notify, c.CORS}
	for _, section := range sections {
		if err := section.Validate(); err != nil {
			return errors.Wrap(err, errors.CategoryValidation, "invalid configuration")
		}
	}

	return nil
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

func (a AuthConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required),
		validation.Field(&a.TokenExpiration, validation.Required, validation.Min(time.Second)),
		validation.Field(&a.PasswordCost, validation.Min(4), validation.Max(31)),
	)
}

func (s StoreConfig) Validate() error {
	uriRules := []validation.Rule{}
	dsnRules := []validation.Rule{}
	switch s.Driver {
	case DriverMongo:
		uriRules = append(uriRules, validation.Required)
	case DriverSQLite:
		dsnRules = append(dsnRules, validation.Length(0, 2048))
	}

	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.Required, validation.In(DriverMongo, DriverSQLite)),
		validation.Field(&s.MongoURI, uriRules...),
		validation.Field(&s.SQLiteDSN, dsnRules...),
		validation.Field(&s.ConnectTimeout, validation.Required),
		validation.Field(&s.ServerSelectionTimeout, validation.Required),
	)
}

func (l LockoutConfig) Validate() error {
	addrRules := []validation.Rule{}
	if l.Backend == BackendRedis {
		addrRules = append(addrRules, validation.Required)
	}

	return validation.ValidateStruct(&l,
		validation.Field(&l.Threshold, validation.Required, validation.Min(1)),
		validation.Field(&l.Window, validation.Required, validation.Min(time.Second)),
		validation.Field(&l.Backend, validation.Required, validation.In(BackendMemory, BackendRedis)),
		validation.Field(&l.RedisAddr, addrRules...),
	)
}

func (n NotifyConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.SlackWebhookURL, is.URL),
	)
}

func (c CORSConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AllowedOrigins, validation.By(func(value any) error {
			origins, _ := value.([]string)
			_, err := auth.NewOriginGuard(origins)
			return err
		})),
	)
}
