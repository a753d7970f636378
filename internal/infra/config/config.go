package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Identity  IdentitySettings  `mapstructure:"identity"`
	Policy    PolicySettings    `mapstructure:"policy"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS.
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the Kafka producer. An empty broker list switches
// the service to the stub publisher.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// IdentitySettings configures verification of bearer tokens minted by the
// primary identity provider.
type IdentitySettings struct {
	SharedSecret string `mapstructure:"shared_secret"`
	Issuer       string `mapstructure:"issuer"`
	Audience     string `mapstructure:"audience"`
}

// PolicySettings holds the trust-decay thresholds. Every value is tunable;
// the defaults match the product policy (5 attempts, 15m lockout, 30d PIN
// window, 90d full re-auth ceiling, 4- or 6-digit PINs).
type PolicySettings struct {
	MaxPinAttempts      int           `mapstructure:"max_pin_attempts"`
	LockoutDuration     time.Duration `mapstructure:"lockout_duration"`
	PinReverifyInterval time.Duration `mapstructure:"pin_reverify_interval"`
	FullReauthInterval  time.Duration `mapstructure:"full_reauth_interval"`
	PinLengths          []int         `mapstructure:"pin_lengths"`
	ResolveTimeout      time.Duration `mapstructure:"resolve_timeout"`
}

// RateLimitSettings configures sliding-window limits for the PIN endpoints.
type RateLimitSettings struct {
	WindowDuration     time.Duration `mapstructure:"window_duration"`
	VerifyMaxAttempts  int           `mapstructure:"verify_max_attempts"`
	ResolveMaxAttempts int           `mapstructure:"resolve_max_attempts"`
}

// TelemetrySettings configures tracing export. An empty OTLP endpoint
// disables tracing entirely.
type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Argon2Settings configures Argon2id PIN hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("REAUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"identity.shared_secret",
		"identity.issuer",
		"identity.audience",
		"policy.max_pin_attempts",
		"policy.lockout_duration",
		"policy.pin_reverify_interval",
		"policy.full_reauth_interval",
		"policy.resolve_timeout",
		"rate_limit.window_duration",
		"rate_limit.verify_max_attempts",
		"rate_limit.resolve_max_attempts",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (p PolicySettings) validate() error {
	if p.MaxPinAttempts <= 0 {
		return fmt.Errorf("policy.max_pin_attempts must be positive")
	}
	if p.LockoutDuration <= 0 {
		return fmt.Errorf("policy.lockout_duration must be positive")
	}
	if p.PinReverifyInterval <= 0 || p.FullReauthInterval <= 0 {
		return fmt.Errorf("policy intervals must be positive")
	}
	if p.PinReverifyInterval >= p.FullReauthInterval {
		return fmt.Errorf("policy.pin_reverify_interval must be shorter than policy.full_reauth_interval")
	}
	if len(p.PinLengths) == 0 {
		return fmt.Errorf("policy.pin_lengths must not be empty")
	}
	for _, l := range p.PinLengths {
		if l < 4 || l > 12 {
			return fmt.Errorf("policy.pin_lengths contains unsupported length %d", l)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "k9-reauth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "reauth")
	v.SetDefault("postgres.password", "reauth_password")
	v.SetDefault("postgres.database", "reauth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "reauth:rate_limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "reauth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("identity.shared_secret", "")
	v.SetDefault("identity.issuer", "k9-trainpro")
	v.SetDefault("identity.audience", "k9-reauth")

	v.SetDefault("policy.max_pin_attempts", 5)
	v.SetDefault("policy.lockout_duration", "15m")
	v.SetDefault("policy.pin_reverify_interval", "720h")
	v.SetDefault("policy.full_reauth_interval", "2160h")
	v.SetDefault("policy.pin_lengths", []int{4, 6})
	v.SetDefault("policy.resolve_timeout", "3s")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.verify_max_attempts", 10)
	v.SetDefault("rate_limit.resolve_max_attempts", 30)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "k9-reauth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("argon2.memory", 65536)
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}
