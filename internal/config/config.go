package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

type DBConfig struct {
	User     string `mapstructure:"postgres_user"`
	Password string `mapstructure:"postgres_password"`
	DBName   string `mapstructure:"postgres_db"`
	Host     string `mapstructure:"postgres_host"`
	Port     string `mapstructure:"postgres_port"`
	SSLMode  string `mapstructure:"postgres_sslmode"`
}

type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	AppEnv   string `mapstructure:"app_env"`
	// Handler selects the Lambda entrypoint.
	Handler string `mapstructure:"handler"`

	StoreBackend        string   `mapstructure:"store_backend"`
	DynamoDBTable       string   `mapstructure:"dynamodb_table"`
	AWSRegion           string   `mapstructure:"aws_region"`
	DynamoDBEndpoint    string   `mapstructure:"dynamodb_endpoint"`
	DynamoDBCreateTable bool     `mapstructure:"dynamodb_create_table"`
	SQLitePath          string   `mapstructure:"sqlite_path"`
	Postgres            DBConfig `mapstructure:",squash"`

	CORSOrigin         string `mapstructure:"cors_origin"`
	ExposeErrorDetails bool   `mapstructure:"expose_error_details"`

	MinTemperature      float64       `mapstructure:"min_temperature"`
	MaxTemperature      float64       `mapstructure:"max_temperature"`
	MaxSensorNameLength int           `mapstructure:"max_sensor_name_length"`
	MaxSessionIDLength  int           `mapstructure:"max_session_id_length"`
	Retention           time.Duration `mapstructure:"retention"`
	RejectDuplicates    bool          `mapstructure:"reject_duplicates"`
	ListDefaultLimit    int           `mapstructure:"list_default_limit"`
	ListOverfetchFactor int           `mapstructure:"list_overfetch_factor"`
	StoreReadRetries    int           `mapstructure:"store_read_retries"`
	RequestTimeout      time.Duration `mapstructure:"-"`
	ExpirySweepSchedule string        `mapstructure:"expiry_sweep_schedule"`

	MQTTBrokerURL       string `mapstructure:"mqtt_broker_url"`
	MQTTClientID        string `mapstructure:"mqtt_client_id"`
	ReadingsTopicPrefix string `mapstructure:"readings_topic_prefix"`
	IngestRetained      bool   `mapstructure:"ingest_retained"`

	KafkaBrokers []string `mapstructure:"-"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
	KafkaGroupID string   `mapstructure:"kafka_group_id"`

	RedisAddr      string `mapstructure:"redis_addr"`
	RateLimitRPS   int    `mapstructure:"rate_limit_rps"`
	RateLimitBurst int    `mapstructure:"rate_limit_burst"`

	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8096")
	v.SetDefault("log_level", "info")
	v.SetDefault("app_env", "prod")
	v.SetDefault("handler", "")

	v.SetDefault("store_backend", BackendSQLite)
	v.SetDefault("dynamodb_table", "TemperatureReadings")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("dynamodb_endpoint", "")
	v.SetDefault("dynamodb_create_table", false)
	v.SetDefault("sqlite_path", "")
	v.SetDefault("postgres_user", "")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db", "")
	v.SetDefault("postgres_host", "")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("cors_origin", "http://localhost:3000")
	v.SetDefault("expose_error_details", true)

	v.SetDefault("min_temperature", -273.15)
	v.SetDefault("max_temperature", 1000.0)
	v.SetDefault("max_sensor_name_length", 50)
	v.SetDefault("max_session_id_length", 100)
	v.SetDefault("retention", "8760h")
	v.SetDefault("reject_duplicates", false)
	v.SetDefault("list_default_limit", 50)
	v.SetDefault("list_overfetch_factor", 10)
	v.SetDefault("store_read_retries", 0)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("expiry_sweep_schedule", "@hourly")

	v.SetDefault("mqtt_broker_url", "")
	v.SetDefault("mqtt_client_id", "temperature-service")
	v.SetDefault("readings_topic_prefix", "temperature/readings/")
	v.SetDefault("ingest_retained", false)

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "temperature-readings")
	v.SetDefault("kafka_group_id", "temperature-service")

	v.SetDefault("redis_addr", "")
	v.SetDefault("rate_limit_rps", 20)
	v.SetDefault("rate_limit_burst", 40)

	v.SetDefault("otlp_endpoint", "")
}

// Option adjusts the defaults an entrypoint loads with.
type Option func(v *viper.Viper)

// WithDefault replaces the default for key. The file and environment still
// take precedence.
func WithDefault(key string, value any) Option {
	return func(v *viper.Viper) { v.SetDefault(key, value) }
}

// Load reads configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and the environment, in increasing precedence.
func Load(opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, opt := range opts {
		opt(v)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	timeout, err := parseMillisOrDuration(v.GetString("request_timeout"))
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}
	cfg.RequestTimeout = timeout
	cfg.KafkaBrokers = splitList(v.GetString("kafka_brokers"))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendSQLite, BackendDynamoDB:
	case BackendPostgres:
		if c.Postgres.Host == "" || c.Postgres.DBName == "" {
			errs = append(errs, errors.New("postgres backend needs POSTGRES_HOST and POSTGRES_DB"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store_backend %q", c.StoreBackend))
	}
	if c.StoreBackend == BackendDynamoDB && c.DynamoDBTable == "" {
		errs = append(errs, errors.New("dynamodb_table is required"))
	}
	if c.MinTemperature >= c.MaxTemperature {
		errs = append(errs, fmt.Errorf("min_temperature %g must be below max_temperature %g", c.MinTemperature, c.MaxTemperature))
	}
	if c.MaxSensorNameLength <= 0 || c.MaxSessionIDLength <= 0 {
		errs = append(errs, errors.New("name length limits must be positive"))
	}
	if c.ListOverfetchFactor <= 0 {
		errs = append(errs, errors.New("list_overfetch_factor must be positive"))
	}
	if c.Retention <= 0 {
		errs = append(errs, errors.New("retention must be positive"))
	}
	return errors.Join(errs...)
}

// parseMillisOrDuration accepts "10s" style durations or a bare number of
// milliseconds.
func parseMillisOrDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
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
