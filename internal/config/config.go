package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Backend selects the order API collaborator.
const (
	BackendREST     = "rest"
	BackendDynamoDB = "dynamodb"
)

// Session identifies the merchant this process serves.
type Session struct {
	UserID     string `yaml:"user_id"`
	MerchantID string `yaml:"merchant_id"`
	Email      string `yaml:"email"`
	Token      string `yaml:"token"`
	RedisAddr  string `yaml:"redis_addr"` // when set, the token is resolved through redis
}

// Tables names the DynamoDB tables.
type Tables struct {
	Orders      string `yaml:"orders"`
	Products    string `yaml:"products"`
	Idempotency string `yaml:"idempotency"`
}

// Kafka configures the optional Kafka chime.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// Config is the process configuration. It is read from the YAML file named
// by CONFIG_FILE, then overridden by environment variables.
type Config struct {
	ServiceName string `yaml:"service_name" validate:"required"`
	RunLocal    bool   `yaml:"run_local"`
	Addr        string `yaml:"addr" validate:"required"`
	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`

	Backend    string `yaml:"backend" validate:"required,oneof=rest dynamodb"`
	APIBaseURL string `yaml:"api_base_url" validate:"omitempty,url"`
	Vocabulary string `yaml:"vocabulary" validate:"required,oneof=canonical display"`

	PollInterval      time.Duration `yaml:"poll_interval" validate:"gt=0"`
	FetchTimeout      time.Duration `yaml:"fetch_timeout" validate:"gte=0"`
	ChimeTimeout      time.Duration `yaml:"chime_timeout" validate:"gte=0"`
	UpdateTimeout     time.Duration `yaml:"update_timeout" validate:"gt=0"`
	LowStockThreshold int           `yaml:"low_stock_threshold" validate:"gte=0"`
	SoundEnabled      bool          `yaml:"sound_enabled"`
	AlertCapacity     int           `yaml:"alert_capacity" validate:"gte=0"`
	IdempotencyTTL    time.Duration `yaml:"idempotency_ttl" validate:"gte=0"`

	Session Session `yaml:"session"`
	Tables  Tables  `yaml:"tables"`

	QueueURL         string `yaml:"queue_url"`
	Kafka            Kafka  `yaml:"kafka"`
	JaegerEndpoint   string `yaml:"jaeger_endpoint" validate:"omitempty,url"`
	MetricsNamespace string `yaml:"metrics_namespace"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ServiceName:       "orderdesk-api",
		Addr:              ":8080",
		LogLevel:          "info",
		Backend:           BackendREST,
		Vocabulary:        "canonical",
		PollInterval:      30 * time.Second,
		ChimeTimeout:      5 * time.Second,
		UpdateTimeout:     15 * time.Second,
		LowStockThreshold: 10,
		SoundEnabled:      true,
		AlertCapacity:     50,
		IdempotencyTTL:    24 * time.Hour,
		MetricsNamespace:  "OrderDesk",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation, for processes that only need a subset
// of the settings.
func Read(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv is Load with the path taken from CONFIG_FILE.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_FILE"))
}

// Validate checks field rules and the cross-field requirements of the
// selected backend.
func (c *Config) Validate() error {
	v := validatorv10.New()
	v.RegisterStructValidation(backendStructValidation, Config{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func backendStructValidation(sl validatorv10.StructLevel) {
	c := sl.Current().Interface().(Config)
	switch c.Backend {
	case BackendREST:
		if c.APIBaseURL == "" {
			sl.ReportError(c.APIBaseURL, "api_base_url", "APIBaseURL", "required_for_rest", "")
		}
	case BackendDynamoDB:
		if c.Tables.Orders == "" {
			sl.ReportError(c.Tables.Orders, "tables.orders", "Orders", "required_for_dynamodb", "")
		}
	}
}

func applyEnv(c *Config) error {
	str := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(dst *bool, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	integer := func(dst *int, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(dst *time.Duration, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str(&c.ServiceName, "SERVICE_NAME")
	boolean(&c.RunLocal, "RUN_LOCAL")
	str(&c.Addr, "ADDR")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.Backend, "ORDER_BACKEND")
	str(&c.APIBaseURL, "API_BASE_URL")
	str(&c.Vocabulary, "STATUS_VOCABULARY")
	duration(&c.PollInterval, "POLL_INTERVAL")
	duration(&c.FetchTimeout, "FETCH_TIMEOUT")
	duration(&c.ChimeTimeout, "CHIME_TIMEOUT")
	duration(&c.UpdateTimeout, "UPDATE_TIMEOUT")
	integer(&c.LowStockThreshold, "LOW_STOCK_THRESHOLD")
	boolean(&c.SoundEnabled, "SOUND_ENABLED")
	integer(&c.AlertCapacity, "ALERT_CAPACITY")
	duration(&c.IdempotencyTTL, "IDEMPOTENCY_TTL")

	str(&c.Session.UserID, "SESSION_USER_ID")
	str(&c.Session.MerchantID, "MERCHANT_ID")
	str(&c.Session.Email, "SESSION_EMAIL")
	str(&c.Session.Token, "SESSION_TOKEN")
	str(&c.Session.RedisAddr, "REDIS_ADDR")

	str(&c.Tables.Orders, "ORDERS_TABLE")
	str(&c.Tables.Products, "PRODUCTS_TABLE")
	str(&c.Tables.Idempotency, "IDEMPOTENCY_TABLE")

	str(&c.QueueURL, "ORDERS_QUEUE_URL")
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	str(&c.Kafka.Topic, "KAFKA_TOPIC")
	str(&c.JaegerEndpoint, "JAEGER_ENDPOINT")
	str(&c.MetricsNamespace, "METRICS_NAMESPACE")

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
