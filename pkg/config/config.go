package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"studyreg/pkg/client"
	"studyreg/pkg/logger"
	"studyreg/pkg/model"

	"github.com/joho/godotenv"
)

var (
	codeRegex      = regexp.MustCompile(`^[0-9]{4}$`)
	mongoURIRegex  = regexp.MustCompile(`^mongodb(\+srv)?://`)
	credentialsURI = regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	SessionTTL          time.Duration
	NotificationTimeout time.Duration
	DefaultCapacity     int

	SendGridAPIKey        string
	EmailFromAddress      string
	EmailFromName         string
	ParticipantTemplateID string
	CollectorTemplateID   string
	IRBNumber             string

	AdminCode string
	Roster    model.Roster
	TokenKey  string
	TokenTTL  time.Duration

	KafkaEnabled bool

	Log    *logger.Logger
	Client *client.Client
}

// Load reads an optional .env file and then the environment. Invalid
// configuration is fatal; missing store or email credentials are not, they
// put the process into demo mode.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, ""),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		SessionTTL:          getEnvDuration(EnvSessionTTL, DefaultSessionTTL),
		NotificationTimeout: getEnvDuration(EnvNotificationTimeout, DefaultNotificationTimeout),
		DefaultCapacity:     getEnvNum(EnvDefaultCapacity, DefaultCapacity),

		SendGridAPIKey:        getEnvStr(EnvSendGridAPIKey, ""),
		EmailFromAddress:      getEnvStr(EnvEmailFromAddress, ""),
		EmailFromName:         getEnvStr(EnvEmailFromName, DefaultEmailFromName),
		ParticipantTemplateID: getEnvStr(EnvParticipantTemplateID, ""),
		CollectorTemplateID:   getEnvStr(EnvCollectorTemplateID, ""),
		IRBNumber:             getEnvStr(EnvIRBNumber, DefaultIRBNumber),

		AdminCode: getEnvStr(EnvAdminCode, DefaultAdminCode),
		TokenKey:  getEnvStr(EnvTokenKey, ""),
		TokenTTL:  getEnvDuration(EnvTokenTTL, DefaultTokenTTL),

		KafkaEnabled: getEnvBool(EnvKafkaEnabled, false),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	roster, err := ApplyCollectorCodes(model.DefaultRoster(), getEnvStr(EnvCollectorCodes, ""))
	if err != nil {
		cfg.Log.Fatal("Invalid collector codes", "error", err)
	}
	cfg.Roster = roster

	if cfg.TokenKey == "" {
		cfg.TokenKey = ephemeralKey()
		cfg.Log.Warn("TOKEN_KEY not set, portal sessions will not survive a restart")
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

// StoreDemoMode reports whether no usable document store is configured.
func (cfg *Config) StoreDemoMode() bool {
	return IsPlaceholder(cfg.MongoURI)
}

// EmailDemoMode reports whether notifications are simulated.
func (cfg *Config) EmailDemoMode() bool {
	return IsPlaceholder(cfg.SendGridAPIKey) || IsPlaceholder(cfg.EmailFromAddress)
}

// IsPlaceholder is true for empty values and the template values shipped in
// example env files.
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	upper := strings.ToUpper(v)
	return strings.HasPrefix(upper, "YOUR_") || strings.HasPrefix(upper, "YOUR-") || upper == "CHANGEME"
}

// ApplyCollectorCodes overrides roster codes from a "s1:1234,s2:5678" list.
func ApplyCollectorCodes(roster model.Roster, codes string) (model.Roster, error) {
	out := slices.Clone(roster)
	if strings.TrimSpace(codes) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(codes, ",") {
		id, code, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("malformed collector code entry %q", pair)
		}
		idx := slices.IndexFunc(out, func(c model.Collector) bool { return c.ID == id })
		if idx < 0 {
			return nil, fmt.Errorf("unknown collector %q", id)
		}
		out[idx].Code = code
	}
	return out, nil
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if !cfg.StoreDemoMode() && !mongoURIRegex.MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"SessionTTL", cfg.SessionTTL},
		{"NotificationTimeout", cfg.NotificationTimeout},
		{"TokenTTL", cfg.TokenTTL},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", d.name, d.d))
		}
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.DefaultCapacity < 0 {
		errors = append(errors, fmt.Sprintf("DefaultCapacity cannot be negative, got: %d", cfg.DefaultCapacity))
	}

	if !codeRegex.MatchString(cfg.AdminCode) {
		errors = append(errors, "AdminCode must be exactly 4 digits")
	}
	seen := map[string]string{cfg.AdminCode: "admin"}
	for _, c := range cfg.Roster {
		if !codeRegex.MatchString(c.Code) {
			errors = append(errors, fmt.Sprintf("code for collector %s must be exactly 4 digits", c.ID))
			continue
		}
		if owner, dup := seen[c.Code]; dup {
			errors = append(errors, fmt.Sprintf("collector %s shares its code with %s", c.ID, owner))
		}
		seen[c.Code] = c.ID
	}

	if key, err := base64.StdEncoding.DecodeString(cfg.TokenKey); err != nil || len(key) != 32 {
		errors = append(errors, "TokenKey must be 32 bytes, base64 encoded")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"store_demo_mode", cfg.StoreDemoMode(),
		"email_demo_mode", cfg.EmailDemoMode(),
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"session_ttl", cfg.SessionTTL,
		"notification_timeout", cfg.NotificationTimeout,
		"default_capacity", cfg.DefaultCapacity,
		"collectors", len(cfg.Roster),
		"kafka_enabled", cfg.KafkaEnabled,
		"irb_number", cfg.IRBNumber,
	)
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}

func redactMongoURI(uri string) string {
	return credentialsURI.ReplaceAllString(uri, "${1}***:***@")
}

func ephemeralKey() string {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return base64.StdEncoding.EncodeToString(key)
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
