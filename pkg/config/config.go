package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/apigate/pkg/observability"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "APIGATE_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	API           APIConfig           `yaml:"api"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	CORSOrigins  []string `yaml:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// APIConfig holds content negotiation and response settings
type APIConfig struct {
	// Vendor is the <vendor> of application/vnd.<vendor>.<version>+<format>.
	// Empty accepts any vendor.
	Vendor         string   `yaml:"vendor"`
	DefaultVersion string   `yaml:"default_version"`
	DefaultFormat  string   `yaml:"default_format"`
	Formats        []string `yaml:"formats"`
	CallbackParam  string   `yaml:"callback_param"`
	Conditional    bool     `yaml:"conditional_requests"`
}

// ThrottleConfig declares one throttle of the chain
type ThrottleConfig struct {
	ID     string        `yaml:"id"`
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
	// Match is authenticated, unauthenticated or always.
	Match string `yaml:"match"`
}

// RateLimitConfig holds the counter store and throttle chain settings
type RateLimitConfig struct {
	// Store is memory, redis or postgres.
	Store         string           `yaml:"store"`
	RedisURL      string           `yaml:"redis_url"`
	RedisPrefix   string           `yaml:"redis_prefix"`
	PostgresURL   string           `yaml:"postgres_url"`
	PostgresTable string           `yaml:"postgres_table"`
	StoreTimeout  time.Duration    `yaml:"store_timeout"`
	SweepSchedule string           `yaml:"sweep_schedule"`
	Throttles     []ThrottleConfig `yaml:"throttles"`
}

// AuthConfig holds the auth provider settings
type AuthConfig struct {
	// Providers is the default provider order for protected routes.
	Providers       []string      `yaml:"providers"`
	Timeout         time.Duration `yaml:"timeout"`
	BasicIdentifier string        `yaml:"basic_identifier"`
	// BasicUsers are login:password:principal entries for the basic provider.
	BasicUsers []string `yaml:"basic_users"`

	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`

	OIDCIssuer   string `yaml:"oidc_issuer"`
	OIDCClientID string `yaml:"oidc_client_id"`

	IntrospectionURL          string `yaml:"introspection_url"`
	IntrospectionClientID     string `yaml:"introspection_client_id"`
	IntrospectionClientSecret string `yaml:"introspection_client_secret"`
	IntrospectionTokenURL     string `yaml:"introspection_token_url"`

	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// Known option values
var (
	StoreTypes    = []string{"memory", "redis", "postgres"}
	MatchKinds    = []string{"authenticated", "unauthenticated", "always"}
	ProviderNames = []string{"basic", "jwt", "oidc", "introspection", "apikey"}
	FormatNames   = []string{"json", "jsonp", "yaml", "msgpack"}

	versionPattern = regexp.MustCompile(`^v\d+$`)
)

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			MaxBodyBytes:    1 << 20,
		},
		API: APIConfig{
			Vendor:         "apigate",
			DefaultVersion: "v1",
			DefaultFormat:  "json",
			Formats:        append([]string(nil), FormatNames...),
			CallbackParam:  "callback",
			Conditional:    true,
		},
		RateLimit: RateLimitConfig{
			Store:         "memory",
			RedisPrefix:   "apigate:throttle",
			PostgresTable: "throttle_counters",
			StoreTimeout:  250 * time.Millisecond,
			SweepSchedule: "@every 1m",
		},
		Auth: AuthConfig{
			Providers:       []string{"basic", "apikey"},
			Timeout:         2 * time.Second,
			BasicIdentifier: "email",
			JWTIssuer:       "apigate",
			CacheTTL:        30 * time.Second,
			CacheSize:       1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "apigate",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// Load builds the configuration from the defaults, the YAML file named by
// APIGATE_CONFIG_FILE (if any), then the APIGATE_* environment variables,
// and validates it
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv(EnvPrefix+"CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile overlays the YAML file at path; keys absent from the file keep
// their current values
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	s := &c.Server
	s.Host = getEnv(EnvPrefix+"HOST", s.Host)
	s.Port = getEnv(EnvPrefix+"PORT", s.Port)
	s.ReadTimeout = getEnvDuration(EnvPrefix+"READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration(EnvPrefix+"WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration(EnvPrefix+"IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv(EnvPrefix+"HEALTH_PORT", s.HealthPort)
	s.CORSOrigins = getEnvList(EnvPrefix+"CORS_ORIGINS", s.CORSOrigins)
	s.MaxBodyBytes = getEnvInt64(EnvPrefix+"MAX_BODY_BYTES", s.MaxBodyBytes)

	a := &c.API
	a.Vendor = getEnv(EnvPrefix+"VENDOR", a.Vendor)
	a.DefaultVersion = getEnv(EnvPrefix+"DEFAULT_VERSION", a.DefaultVersion)
	a.DefaultFormat = getEnv(EnvPrefix+"DEFAULT_FORMAT", a.DefaultFormat)
	a.Formats = getEnvList(EnvPrefix+"FORMATS", a.Formats)
	a.CallbackParam = getEnv(EnvPrefix+"CALLBACK_PARAM", a.CallbackParam)
	a.Conditional = getEnvBool(EnvPrefix+"CONDITIONAL_REQUESTS", a.Conditional)

	r := &c.RateLimit
	r.Store = getEnv(EnvPrefix+"RATE_LIMIT_STORE", r.Store)
	r.RedisURL = getEnv(EnvPrefix+"REDIS_URL", r.RedisURL)
	r.RedisPrefix = getEnv(EnvPrefix+"REDIS_PREFIX", r.RedisPrefix)
	r.PostgresURL = getEnv(EnvPrefix+"POSTGRES_URL", r.PostgresURL)
	r.PostgresTable = getEnv(EnvPrefix+"POSTGRES_TABLE", r.PostgresTable)
	r.StoreTimeout = getEnvDuration(EnvPrefix+"RATE_LIMIT_STORE_TIMEOUT", r.StoreTimeout)
	r.SweepSchedule = getEnv(EnvPrefix+"RATE_LIMIT_SWEEP_SCHEDULE", r.SweepSchedule)
	if spec := getEnv(EnvPrefix+"THROTTLES", ""); spec != "" {
		throttles, err := ParseThrottles(spec)
		if err != nil {
			return fmt.Errorf("invalid %sTHROTTLES: %w", EnvPrefix, err)
		}
		r.Throttles = throttles
	}

	au := &c.Auth
	au.Providers = getEnvList(EnvPrefix+"AUTH_PROVIDERS", au.Providers)
	au.Timeout = getEnvDuration(EnvPrefix+"AUTH_TIMEOUT", au.Timeout)
	au.BasicIdentifier = getEnv(EnvPrefix+"AUTH_BASIC_IDENTIFIER", au.BasicIdentifier)
	au.BasicUsers = getEnvList(EnvPrefix+"BASIC_USERS", au.BasicUsers)
	au.JWTSecret = getEnv(EnvPrefix+"JWT_SECRET", au.JWTSecret)
	au.JWTIssuer = getEnv(EnvPrefix+"JWT_ISSUER", au.JWTIssuer)
	au.JWTAudience = getEnv(EnvPrefix+"JWT_AUDIENCE", au.JWTAudience)
	au.OIDCIssuer = getEnv(EnvPrefix+"OIDC_ISSUER", au.OIDCIssuer)
	au.OIDCClientID = getEnv(EnvPrefix+"OIDC_CLIENT_ID", au.OIDCClientID)
	au.IntrospectionURL = getEnv(EnvPrefix+"INTROSPECTION_URL", au.IntrospectionURL)
	au.IntrospectionClientID = getEnv(EnvPrefix+"INTROSPECTION_CLIENT_ID", au.IntrospectionClientID)
	au.IntrospectionClientSecret = getEnv(EnvPrefix+"INTROSPECTION_CLIENT_SECRET", au.IntrospectionClientSecret)
	au.IntrospectionTokenURL = getEnv(EnvPrefix+"INTROSPECTION_TOKEN_URL", au.IntrospectionTokenURL)
	au.CacheTTL = getEnvDuration(EnvPrefix+"AUTH_CACHE_TTL", au.CacheTTL)
	au.CacheSize = getEnvInt(EnvPrefix+"AUTH_CACHE_SIZE", au.CacheSize)

	o := &c.Observability
	o.LogLevel = getEnv(EnvPrefix+"LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool(EnvPrefix+"METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool(EnvPrefix+"OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv(EnvPrefix+"OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv(EnvPrefix+"OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv(EnvPrefix+"OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool(EnvPrefix+"OTEL_INSECURE", o.OTelInsecure)

	return nil
}

// ParseThrottles parses a comma separated list of id:limit:window[:match]
// entries, e.g. "anon:60:1m:unauthenticated,users:600:1m:authenticated".
// match defaults to always.
func ParseThrottles(spec string) ([]ThrottleConfig, error) {
	var out []ThrottleConfig
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("throttle %q: want id:limit:window[:match]", entry)
		}
		limit, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("throttle %q: invalid limit: %w", entry, err)
		}
		window, err := time.ParseDuration(parts[2])
		if err != nil {
			return nil, fmt.Errorf("throttle %q: invalid window: %w", entry, err)
		}
		t := ThrottleConfig{ID: parts[0], Limit: limit, Window: window, Match: "always"}
		if len(parts) == 4 {
			t.Match = parts[3]
		}
		out = append(out, t)
	}
	return out, nil
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs *multierror.Error

	// Validate server config
	if c.Server.Port == "" {
		errs = multierror.Append(errs, fmt.Errorf("server port is required"))
	}
	if c.Server.HealthPort == "" {
		errs = multierror.Append(errs, fmt.Errorf("health port is required"))
	}
	if c.Server.Port != "" && c.Server.Port == c.Server.HealthPort {
		errs = multierror.Append(errs, fmt.Errorf("server port and health port must be different"))
	}

	// Validate content negotiation
	if !versionPattern.MatchString(c.API.DefaultVersion) {
		errs = multierror.Append(errs, fmt.Errorf("invalid default version %q (must look like v1)", c.API.DefaultVersion))
	}
	for _, f := range c.API.Formats {
		if !contains(FormatNames, f) {
			errs = multierror.Append(errs, fmt.Errorf("unknown format %q (must be one of %s)", f, strings.Join(FormatNames, ", ")))
		}
	}
	if !contains(c.API.Formats, c.API.DefaultFormat) {
		errs = multierror.Append(errs, fmt.Errorf("default format %q is not enabled", c.API.DefaultFormat))
	}

	errs = multierror.Append(errs, c.RateLimit.validate()...)
	errs = multierror.Append(errs, c.Auth.validate()...)

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			errs = multierror.Append(errs, fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled"))
		}
		if c.Observability.OTelServiceName == "" {
			errs = multierror.Append(errs, fmt.Errorf("OpenTelemetry service name is required when OTel is enabled"))
		}
	}

	return errs.ErrorOrNil()
}

func (r RateLimitConfig) validate() []error {
	var errs []error

	switch r.Store {
	case "memory":
		if _, err := cron.ParseStandard(r.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid sweep schedule %q: %w", r.SweepSchedule, err))
		}
	case "redis":
		if r.RedisURL == "" {
			errs = append(errs, fmt.Errorf("redis URL is required for the redis rate limit store"))
		}
	case "postgres":
		if r.PostgresURL == "" {
			errs = append(errs, fmt.Errorf("postgres URL is required for the postgres rate limit store"))
		}
		if _, err := cron.ParseStandard(r.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid sweep schedule %q: %w", r.SweepSchedule, err))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid rate limit store: %s (must be %s)", r.Store, strings.Join(StoreTypes, ", ")))
	}

	seen := make(map[string]bool)
	for i, t := range r.Throttles {
		switch {
		case t.ID == "":
			errs = append(errs, fmt.Errorf("throttle %d: id is required", i))
		case seen[t.ID]:
			errs = append(errs, fmt.Errorf("throttle %s: duplicate id", t.ID))
		}
		seen[t.ID] = true
		if t.Limit < 1 {
			errs = append(errs, fmt.Errorf("throttle %s: limit must be positive", t.ID))
		}
		if t.Window <= 0 {
			errs = append(errs, fmt.Errorf("throttle %s: window must be positive", t.ID))
		}
		if !contains(MatchKinds, t.Match) {
			errs = append(errs, fmt.Errorf("throttle %s: invalid match %q (must be %s)", t.ID, t.Match, strings.Join(MatchKinds, ", ")))
		}
	}
	return errs
}

func (a AuthConfig) validate() []error {
	var errs []error
	for _, name := range a.Providers {
		switch name {
		case "basic", "apikey":
		case "jwt":
			if a.JWTSecret == "" {
				errs = append(errs, fmt.Errorf("jwt secret is required for the jwt provider"))
			}
		case "oidc":
			if a.OIDCIssuer == "" || a.OIDCClientID == "" {
				errs = append(errs, fmt.Errorf("oidc issuer and client id are required for the oidc provider"))
			}
		case "introspection":
			if a.IntrospectionURL == "" {
				errs = append(errs, fmt.Errorf("introspection URL is required for the introspection provider"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown auth provider %q (must be one of %s)", name, strings.Join(ProviderNames, ", ")))
		}
	}
	for _, entry := range a.BasicUsers {
		if _, _, _, ok := SplitBasicUser(entry); !ok {
			errs = append(errs, fmt.Errorf("invalid basic user %q (want login:password:principal)", strings.SplitN(entry, ":", 2)[0]))
		}
	}
	if a.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("auth timeout must be positive"))
	}
	return errs
}

// SplitBasicUser splits a login:password:principal entry. The password may
// not contain a colon.
func SplitBasicUser(entry string) (login, password, principal string, ok bool) {
	parts := strings.Split(entry, ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
