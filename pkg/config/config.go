package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Report store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env         string
	ServiceName string
	Port        int
	APIPrefix   string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Storage       StorageConfig
	CriticalAreas CriticalAreaConfig
	Escalation    EscalationConfig
	Hotspots      HotspotConfig
	MQTT          MQTTConfig
	Metrics       MetricsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port pair for the redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	SingleSession     bool
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the report store adapter.
type StorageConfig struct {
	ReportDriver string
}

// CriticalAreaConfig tunes clustering and the analysis cache.
type CriticalAreaConfig struct {
	MinClusterSize      int
	SeverityMediumFloor int
	SeverityHighFloor   int
	SeverityCritFloor   int
	CacheEnabled        bool
	CacheTTL            time.Duration
}

// EscalationConfig governs escalation to the external authority.
type EscalationConfig struct {
	PortalURL      string
	MinPatternSize int
	WebhookURL     string
	WebhookToken   string
	WebhookTimeout time.Duration
	WebhookRetries int
}

// HotspotConfig drives the periodic hotspot monitor.
type HotspotConfig struct {
	ScanInterval         time.Duration
	AlertSeverity        string
	AutoEscalate         bool
	AutoEscalateSeverity string
	Workers              int
	MaxRetries           int
	RetryDelay           time.Duration
}

// MQTTConfig configures hotspot alert publishing.
type MQTTConfig struct {
	Enabled     bool
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
}

type MetricsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.ServiceName = v.GetString("SERVICE_NAME")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		SingleSession:     v.GetBool("JWT_SINGLE_SESSION"),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS")),
		AllowedHeaders: splitAndTrim(v.GetString("ALLOWED_HEADERS")),
		MaxAge:         parseDuration(v.GetString("CORS_MAX_AGE"), 10*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		ReportDriver: strings.ToLower(v.GetString("REPORT_STORE")),
	}

	cfg.CriticalAreas = CriticalAreaConfig{
		MinClusterSize:      v.GetInt("CRITICAL_AREA_MIN_CLUSTER"),
		SeverityMediumFloor: v.GetInt("SEVERITY_MEDIUM_FLOOR"),
		SeverityHighFloor:   v.GetInt("SEVERITY_HIGH_FLOOR"),
		SeverityCritFloor:   v.GetInt("SEVERITY_CRITICAL_FLOOR"),
		CacheEnabled:        v.GetBool("CRITICAL_AREA_CACHE_ENABLED"),
		CacheTTL:            parseDuration(v.GetString("CRITICAL_AREA_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Escalation = EscalationConfig{
		PortalURL:      v.GetString("CYBERCRIME_PORTAL_URL"),
		MinPatternSize: v.GetInt("ESCALATION_MIN_PATTERN"),
		WebhookURL:     v.GetString("AUTHORITY_WEBHOOK_URL"),
		WebhookToken:   v.GetString("AUTHORITY_WEBHOOK_TOKEN"),
		WebhookTimeout: parseDuration(v.GetString("AUTHORITY_WEBHOOK_TIMEOUT"), 10*time.Second),
		WebhookRetries: v.GetInt("AUTHORITY_WEBHOOK_RETRIES"),
	}

	cfg.Hotspots = HotspotConfig{
		ScanInterval:         parseDuration(v.GetString("HOTSPOT_SCAN_INTERVAL"), 0),
		AlertSeverity:        strings.ToLower(v.GetString("HOTSPOT_ALERT_SEVERITY")),
		AutoEscalate:         v.GetBool("AUTO_ESCALATE_ENABLED"),
		AutoEscalateSeverity: strings.ToLower(v.GetString("AUTO_ESCALATE_SEVERITY")),
		Workers:              v.GetInt("ESCALATION_WORKERS"),
		MaxRetries:           v.GetInt("ESCALATION_WORKER_RETRIES"),
		RetryDelay:           parseDuration(v.GetString("ESCALATION_RETRY_DELAY"), 5*time.Second),
	}

	cfg.MQTT = MQTTConfig{
		Enabled:     v.GetBool("MQTT_ENABLED"),
		Broker:      v.GetString("MQTT_BROKER"),
		ClientID:    v.GetString("MQTT_CLIENT_ID"),
		Username:    v.GetString("MQTT_USERNAME"),
		Password:    v.GetString("MQTT_PASSWORD"),
		TopicPrefix: strings.TrimRight(v.GetString("MQTT_TOPIC_PREFIX"), "/"),
		QoS:         v.GetInt("MQTT_QOS"),
	}

	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("ENABLE_METRICS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.ReportDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported REPORT_STORE %q", c.Storage.ReportDriver)
	}
	ca := c.CriticalAreas
	if ca.SeverityMediumFloor > ca.SeverityHighFloor || ca.SeverityHighFloor > ca.SeverityCritFloor {
		return fmt.Errorf("severity floors must be non-decreasing (medium=%d high=%d critical=%d)",
			ca.SeverityMediumFloor, ca.SeverityHighFloor, ca.SeverityCritFloor)
	}
	if c.Env == EnvProduction && c.JWT.Secret == "dev_secret" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("SERVICE_NAME", "cyberguard-api")
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "cyberguard")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "cyberguard-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_SINGLE_SESSION", false)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("ALLOWED_HEADERS", "Authorization,Content-Type,X-Requested-With,X-Request-ID")
	v.SetDefault("CORS_MAX_AGE", "10m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REPORT_STORE", StoreDriverPostgres)

	v.SetDefault("CRITICAL_AREA_MIN_CLUSTER", 3)
	v.SetDefault("SEVERITY_MEDIUM_FLOOR", 3)
	v.SetDefault("SEVERITY_HIGH_FLOOR", 7)
	v.SetDefault("SEVERITY_CRITICAL_FLOOR", 10)
	v.SetDefault("CRITICAL_AREA_CACHE_ENABLED", true)
	v.SetDefault("CRITICAL_AREA_CACHE_TTL", "2m")

	v.SetDefault("CYBERCRIME_PORTAL_URL", "https://cybercrime.gov.in/")
	v.SetDefault("ESCALATION_MIN_PATTERN", 3)
	v.SetDefault("AUTHORITY_WEBHOOK_URL", "")
	v.SetDefault("AUTHORITY_WEBHOOK_TOKEN", "")
	v.SetDefault("AUTHORITY_WEBHOOK_TIMEOUT", "10s")
	v.SetDefault("AUTHORITY_WEBHOOK_RETRIES", 3)

	v.SetDefault("HOTSPOT_SCAN_INTERVAL", "")
	v.SetDefault("HOTSPOT_ALERT_SEVERITY", "high")
	v.SetDefault("AUTO_ESCALATE_ENABLED", false)
	v.SetDefault("AUTO_ESCALATE_SEVERITY", "critical")
	v.SetDefault("ESCALATION_WORKERS", 2)
	v.SetDefault("ESCALATION_WORKER_RETRIES", 3)
	v.SetDefault("ESCALATION_RETRY_DELAY", "5s")

	v.SetDefault("MQTT_ENABLED", false)
	v.SetDefault("MQTT_BROKER", "tcp://localhost:1883")
	v.SetDefault("MQTT_CLIENT_ID", "cyberguard-api")
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")
	v.SetDefault("MQTT_TOPIC_PREFIX", "cyberguard/hotspots")
	v.SetDefault("MQTT_QOS", 1)

	v.SetDefault("ENABLE_METRICS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
