package config

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"studyreg/pkg/model"
)

func validConfig() *Config {
	return &Config{
		MongoDatabaseName:   DefaultMongoDatabaseName,
		MongoConnTimeout:    DefaultMongoConnTimeout,
		Port:                DefaultPort,
		RateLimitRequests:   DefaultRateLimitRequests,
		RateLimitWindow:     DefaultRateLimitWindow,
		RequestTimeout:      DefaultRequestTimeout,
		IdempotencyTTL:      DefaultIdempotencyTTL,
		MaxRequestSize:      DefaultMaxRequestSize,
		ReadTimeout:         DefaultReadTimeout,
		WriteTimeout:        DefaultWriteTimeout,
		IdleTimeout:         DefaultIdleTimeout,
		ShutdownTimeout:     DefaultShutdownTimeout,
		SessionTTL:          DefaultSessionTTL,
		NotificationTimeout: DefaultNotificationTimeout,
		DefaultCapacity:     DefaultCapacity,
		AdminCode:           DefaultAdminCode,
		Roster:              model.DefaultRoster(),
		TokenKey:            base64.StdEncoding.EncodeToString(make([]byte, 32)),
		TokenTTL:            DefaultTokenTTL,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "demo store is valid", mutate: func(c *Config) { c.MongoURI = "YOUR_MONGO_URI" }},
		{name: "real mongo uri", mutate: func(c *Config) { c.MongoURI = "mongodb://localhost:27017" }},
		{name: "bad mongo uri", mutate: func(c *Config) { c.MongoURI = "postgres://x" }, wantErr: "MongoURI"},
		{name: "bad port", mutate: func(c *Config) { c.Port = "99999" }, wantErr: "Port"},
		{name: "short admin code", mutate: func(c *Config) { c.AdminCode = "12" }, wantErr: "AdminCode"},
		{name: "duplicate collector code", mutate: func(c *Config) { c.Roster[1].Code = c.Roster[0].Code }, wantErr: "shares its code"},
		{name: "collector code equals admin", mutate: func(c *Config) { c.Roster[0].Code = "0000" }, wantErr: "shares its code with admin"},
		{name: "zero timeout", mutate: func(c *Config) { c.NotificationTimeout = 0 }, wantErr: "NotificationTimeout"},
		{name: "bad token key", mutate: func(c *Config) { c.TokenKey = "short" }, wantErr: "TokenKey"},
		{name: "negative capacity", mutate: func(c *Config) { c.DefaultCapacity = -1 }, wantErr: "DefaultCapacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestIsPlaceholder(t *testing.T) {
	cases := map[string]bool{
		"":                          true,
		"   ":                       true,
		"YOUR_API_KEY":              true,
		"your-service-id":           true,
		"changeme":                  true,
		"SG.realkey":                false,
		"mongodb://localhost:27017": false,
	}
	for in, want := range cases {
		if got := IsPlaceholder(in); got != want {
			t.Errorf("IsPlaceholder(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDemoModes(t *testing.T) {
	cfg := validConfig()
	if !cfg.StoreDemoMode() || !cfg.EmailDemoMode() {
		t.Fatalf("empty credentials should mean demo mode")
	}

	cfg.MongoURI = "mongodb://db:27017"
	cfg.SendGridAPIKey = "SG.key"
	cfg.EmailFromAddress = "study@example.edu"
	if cfg.StoreDemoMode() || cfg.EmailDemoMode() {
		t.Fatalf("configured credentials should leave demo mode")
	}
}

func TestApplyCollectorCodes(t *testing.T) {
	roster, err := ApplyCollectorCodes(model.DefaultRoster(), "s1:4321, s3:1111")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roster[0].Code != "4321" || roster[2].Code != "1111" {
		t.Errorf("codes not applied: %+v", roster)
	}
	if model.DefaultRoster()[0].Code != "1234" {
		t.Errorf("default roster must not be mutated")
	}

	if _, err := ApplyCollectorCodes(model.DefaultRoster(), "s9:1234"); err == nil {
		t.Errorf("expected error for unknown collector")
	}
	if _, err := ApplyCollectorCodes(model.DefaultRoster(), "s1"); err == nil {
		t.Errorf("expected error for malformed entry")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("STUDYREG_TEST_DURATION", "90s")
	if got := getEnvDuration("STUDYREG_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("got %s", got)
	}
	t.Setenv("STUDYREG_TEST_DURATION", "garbage")
	if got := getEnvDuration("STUDYREG_TEST_DURATION", time.Second); got != time.Second {
		t.Errorf("fallback not used, got %s", got)
	}
}
