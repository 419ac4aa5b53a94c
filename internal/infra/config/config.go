package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MOODWELL"

// ConfigFileEnv names an optional YAML, JSON or TOML file read before the
// environment. It is the only way to supply gateway.routes.
const ConfigFileEnv = envPrefix + "_CONFIG_FILE"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Store     StoreSettings     `mapstructure:"store"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Mongo     MongoSettings     `mapstructure:"mongo"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	Reset     ResetSettings     `mapstructure:"reset"`
	Mail      MailSettings      `mapstructure:"mail"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Gateway   GatewaySettings   `mapstructure:"gateway"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StoreSettings selects the credential store backend: "postgres", "mongo" or "memory".
type StoreSettings struct {
	Driver string `mapstructure:"driver"`
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
	MigrateOnStart    bool          `mapstructure:"migrate_on_start"`
}

type MongoSettings struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	Collection     string        `mapstructure:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// ResetSettings controls the OTP password reset workflow. A zero ChallengeTTL keeps
// challenges until they are overwritten.
type ResetSettings struct {
	Store              string        `mapstructure:"store"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	ChallengeTTL       time.Duration `mapstructure:"challenge_ttl"`
	RequireVerifiedOTP bool          `mapstructure:"require_verified_otp"`
}

type MailSettings struct {
	Driver   string        `mapstructure:"driver"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Subject  string        `mapstructure:"subject"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
	VerifyOTPMaxAttempts     int           `mapstructure:"verify_otp_max_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// GatewaySettings configures the request router. Routes, when set, replace the
// table derived from Upstreams.
type GatewaySettings struct {
	Host            string           `mapstructure:"host"`
	Port            int              `mapstructure:"port"`
	BodyLimit       int64            `mapstructure:"body_limit"`
	UpstreamTimeout time.Duration    `mapstructure:"upstream_timeout"`
	CORSOrigins     []string         `mapstructure:"cors_origins"`
	Upstreams       UpstreamSettings `mapstructure:"upstreams"`
	Routes          []GatewayRoute   `mapstructure:"routes"`
}

type UpstreamSettings struct {
	Auth          string `mapstructure:"auth"`
	User          string `mapstructure:"user"`
	Mood          string `mapstructure:"mood"`
	ChromeHistory string `mapstructure:"chrome_history"`
	Model         string `mapstructure:"model"`
	Chat          string `mapstructure:"chat"`
}

type GatewayRoute struct {
	Name        string `mapstructure:"name"`
	Prefix      string `mapstructure:"prefix"`
	Target      string `mapstructure:"target"`
	StripPrefix bool   `mapstructure:"strip_prefix"`
}

// RouteTable returns the configured dispatch table in match order.
func (g GatewaySettings) RouteTable() []GatewayRoute {
	if len(g.Routes) > 0 {
		return g.Routes
	}

	return []GatewayRoute{
		{Name: "auth", Prefix: "/api/auth", Target: g.Upstreams.Auth, StripPrefix: true},
		{Name: "user", Prefix: "/api/user", Target: g.Upstreams.User, StripPrefix: true},
		{Name: "mood", Prefix: "/api/mood", Target: g.Upstreams.Mood, StripPrefix: true},
		{Name: "chrome-history", Prefix: "/api/chrome-history", Target: g.Upstreams.ChromeHistory, StripPrefix: true},
		{Name: "model", Prefix: "/api/model", Target: g.Upstreams.Model, StripPrefix: true},
		{Name: "chat", Prefix: "/api/chat", Target: g.Upstreams.Chat, StripPrefix: true},
	}
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_origins",
		"store.driver",
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
		"postgres.migrate_on_start",
		"mongo.uri",
		"mongo.database",
		"mongo.collection",
		"mongo.connect_timeout",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"reset.store",
		"reset.key_prefix",
		"reset.challenge_ttl",
		"reset.require_verified_otp",
		"mail.driver",
		"mail.host",
		"mail.port",
		"mail.username",
		"mail.password",
		"mail.from",
		"mail.subject",
		"mail.timeout",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"rate_limit.verify_otp_max_attempts",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"gateway.host",
		"gateway.port",
		"gateway.body_limit",
		"gateway.upstream_timeout",
		"gateway.cors_origins",
	}); err != nil {
		return nil, err
	}

	// Backend addresses keep the variable names the services are deployed with.
	for key, legacy := range map[string]string{
		"gateway.upstreams.auth":           "AUTH_SERVICE_URL",
		"gateway.upstreams.user":           "USER_SERVICE_URL",
		"gateway.upstreams.mood":           "MOOD_SERVICE_URL",
		"gateway.upstreams.chrome_history": "CHROME_HISTORY_SERVICE_URL",
		"gateway.upstreams.model":          "MODEL_SERVICE_URL",
		"gateway.upstreams.chat":           "CHAT_SERVICE_URL",
		"mail.username":                    "EMAIL_USER",
		"mail.password":                    "EMAIL_PASS",
	} {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "moodwell-identity")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 3001)
	v.SetDefault("app.cors_origins", []string{"*"})

	v.SetDefault("store.driver", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "moodwell")
	v.SetDefault("postgres.password", "moodwell_password")
	v.SetDefault("postgres.database", "moodwell")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.migrate_on_start", true)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "moodwell")
	v.SetDefault("mongo.collection", "users")
	v.SetDefault("mongo.connect_timeout", "10s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "moodwell")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "1h")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("reset.store", "memory")
	v.SetDefault("reset.key_prefix", "moodwell:reset")
	v.SetDefault("reset.challenge_ttl", "0s")
	v.SetDefault("reset.require_verified_otp", false)

	v.SetDefault("mail.driver", "log")
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.subject", "Reset Password")
	v.SetDefault("mail.timeout", 10*time.Second)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)
	v.SetDefault("rate_limit.verify_otp_max_attempts", 5)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "moodwell")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 3000)
	v.SetDefault("gateway.body_limit", 10<<20)
	v.SetDefault("gateway.upstream_timeout", "30s")
	v.SetDefault("gateway.cors_origins", []string{"*"})
	v.SetDefault("gateway.upstreams.auth", "http://localhost:3001")
	v.SetDefault("gateway.upstreams.user", "http://localhost:3002")
	v.SetDefault("gateway.upstreams.mood", "http://localhost:3003")
	v.SetDefault("gateway.upstreams.chrome_history", "http://localhost:5000")
	v.SetDefault("gateway.upstreams.model", "http://127.0.0.1:8000")
	v.SetDefault("gateway.upstreams.chat", "http://0.0.0.0:9000")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
