package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
queue:
  backend: memory
  address: work
consumer:
  visibility_timeout: 90s
  batch_size: 5
inference:
  provider: echo
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Queue.Backend != QueueBackendMemory {
		t.Errorf("Queue.Backend = %v, want memory", cfg.Queue.Backend)
	}
	if cfg.Consumer.VisibilityTimeout != 90*time.Second {
		t.Errorf("VisibilityTimeout = %v, want 90s", cfg.Consumer.VisibilityTimeout)
	}
	if cfg.Consumer.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.Consumer.BatchSize)
	}
	if cfg.Consumer.WaitTime != 10*time.Second {
		t.Errorf("WaitTime default = %v, want 10s", cfg.Consumer.WaitTime)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port default = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Outcomes.Store != OutcomeStoreNone {
		t.Errorf("Outcomes.Store default = %v, want none", cfg.Outcomes.Store)
	}
	if cfg.Queue.Retention != 14*24*time.Hour {
		t.Errorf("Queue.Retention default = %v, want 14 days", cfg.Queue.Retention)
	}
	if cfg.Server.CORSAllowOrigins != "*" {
		t.Errorf("Server.CORSAllowOrigins default = %q, want *", cfg.Server.CORSAllowOrigins)
	}
	if cfg.Consumer.NotifyTimeout != 5*time.Second {
		t.Errorf("Consumer.NotifyTimeout default = %v, want 5s", cfg.Consumer.NotifyTimeout)
	}
	if cfg.Kafka.WriteTimeout != 5*time.Second || cfg.Kafka.MaxAttempts != 3 {
		t.Errorf("Kafka bounds default = %v/%d, want 5s/3", cfg.Kafka.WriteTimeout, cfg.Kafka.MaxAttempts)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
queue:
  address: from-file
server:
  port: 8080
`)
	t.Setenv("SQS_URL", "https://sqs.eu-west-1.amazonaws.com/123456789012/sample-queue")
	t.Setenv("PORT", "4000")
	t.Setenv("AWS_ACCOUNT_REGION", "eu-west-1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Queue.Address != "https://sqs.eu-west-1.amazonaws.com/123456789012/sample-queue" {
		t.Errorf("Queue.Address = %v", cfg.Queue.Address)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.AWS.Region != "eu-west-1" {
		t.Errorf("AWS.Region = %v", cfg.AWS.Region)
	}
	if cfg.Inference.APIKey != "sk-test" || cfg.Inference.Model != "gpt-4o-mini" {
		t.Errorf("Inference = %+v", cfg.Inference)
	}
	if err := cfg.Validate(RoleSubscriber); err != nil {
		t.Errorf("Validate error: %v", err)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if _, err := Load(""); err == nil {
		t.Error("expected error for invalid PORT")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		cfg.Queue.Address = "https://sqs.us-east-1.amazonaws.com/1/q"
		cfg.AWS.Region = "us-east-1"
		cfg.Inference.APIKey = "key"
		cfg.Inference.Model = "model"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		role    Role
		wantErr string
	}{
		{
			name:   "complete subscriber",
			mutate: func(*Config) {},
			role:   RoleSubscriber,
		},
		{
			name:    "missing queue address",
			mutate:  func(c *Config) { c.Queue.Address = "" },
			role:    RolePublisher,
			wantErr: "queue.address",
		},
		{
			name:    "missing region for sqs",
			mutate:  func(c *Config) { c.AWS.Region = "" },
			role:    RolePublisher,
			wantErr: "aws.region",
		},
		{
			name: "region not needed for memory",
			mutate: func(c *Config) {
				c.Queue.Backend = QueueBackendMemory
				c.AWS.Region = ""
			},
			role: RolePublisher,
		},
		{
			name:   "publisher does not need inference credentials",
			mutate: func(c *Config) { c.Inference.APIKey = "" },
			role:   RolePublisher,
		},
		{
			name:    "subscriber needs api key",
			mutate:  func(c *Config) { c.Inference.APIKey = "" },
			role:    RoleSubscriber,
			wantErr: "inference.api_key",
		},
		{
			name:    "subscriber needs model",
			mutate:  func(c *Config) { c.Inference.Model = "" },
			role:    RoleSubscriber,
			wantErr: "inference.model",
		},
		{
			name: "echo provider needs no credentials",
			mutate: func(c *Config) {
				c.Inference.Provider = "echo"
				c.Inference.APIKey = ""
				c.Inference.Model = ""
			},
			role: RoleSubscriber,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Queue.Backend = "rabbitmq" },
			role:    RolePublisher,
			wantErr: "queue.backend",
		},
		{
			name:    "unknown outcome store",
			mutate:  func(c *Config) { c.Outcomes.Store = "mongo" },
			role:    RoleSubscriber,
			wantErr: "outcomes.store",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate(tt.role)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestAddressHelpers(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 3000}
	if s.Address() != "127.0.0.1:3000" {
		t.Errorf("Address() = %v", s.Address())
	}
	r := RedisConfig{Host: "redis", Port: 6379}
	if r.RedisAddr() != "redis:6379" {
		t.Errorf("RedisAddr() = %v", r.RedisAddr())
	}
}
