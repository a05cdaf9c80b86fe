package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	const yml = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  backend:
    name: anyllm
    api_key: test-key
    options:
      provider: anthropic
  realtime:
    name: openai-realtime
    api_key: test-key
    model: gpt-4o-realtime-preview
storage:
  postgres_dsn: "postgres://prepdeck@localhost:5432/prepdeck?sslmode=disable"
sessions:
  idle_ttl: 45m
  attempt_timeout: 20s
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Fatalf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Fatalf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Providers.Backend.Name != "anyllm" {
		t.Fatalf("Backend.Name = %q, want anyllm", cfg.Providers.Backend.Name)
	}
	if got, _ := cfg.Providers.Backend.Options["provider"].(string); got != "anthropic" {
		t.Fatalf("Backend.Options[provider] = %q, want anthropic", got)
	}
	if cfg.Sessions.IdleTTL != 45*time.Minute {
		t.Fatalf("IdleTTL = %s, want 45m", cfg.Sessions.IdleTTL)
	}
	if cfg.Sessions.AttemptTimeout != 20*time.Second {
		t.Fatalf("AttemptTimeout = %s, want 20s", cfg.Sessions.AttemptTimeout)
	}
}

func TestLoadFromReader_ExpandsEnvReferences(t *testing.T) {
	t.Setenv("PREPDECK_TEST_KEY", "sk-from-env")

	const yml = `
providers:
  backend:
    name: openai
    api_key: ${PREPDECK_TEST_KEY}
`
	cfg, err := LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.Backend.APIKey != "sk-from-env" {
		t.Fatalf("APIKey = %q, want expanded env value", cfg.Providers.Backend.APIKey)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	const yml = `
server:
  listen_addr: ":8080"
  max_connections: 10
providers:
  backend:
    name: mock
`
	_, err := LoadFromReader(strings.NewReader(yml))
	if err == nil {
		t.Fatal("unknown field must be rejected")
	}
	if !strings.Contains(err.Error(), "max_connections") {
		t.Fatalf("err = %v, want the unknown field named", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			"invalid log level",
			func(c *Config) { c.Server.LogLevel = "verbose" },
			"server.log_level",
		},
		{
			"missing backend name",
			func(c *Config) { c.Providers.Backend.Name = "" },
			"providers.backend.name",
		},
		{
			"anyllm without underlying provider",
			func(c *Config) {
				c.Providers.Backend.Name = "anyllm"
				c.Providers.Backend.Options = nil
			},
			"options.provider",
		},
		{
			"tls without key file",
			func(c *Config) { c.Server.TLS = &TLSConfig{CertFile: "/etc/tls/cert.pem"} },
			"server.tls.key_file",
		},
		{
			"negative idle ttl",
			func(c *Config) { c.Sessions.IdleTTL = -time.Minute },
			"sessions.idle_ttl",
		},
		{
			"negative attempt timeout",
			func(c *Config) { c.Sessions.AttemptTimeout = -time.Second },
			"sessions.attempt_timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Providers: ProvidersConfig{
					Backend:  ProviderEntry{Name: "mock"},
					Realtime: ProviderEntry{Name: "mock"},
				},
			}
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{LogLevel: "loud"},
		Sessions: SessionsConfig{
			IdleTTL:        -time.Minute,
			AttemptTimeout: -time.Second,
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{"server.log_level", "providers.backend.name", "sessions.idle_ttl", "sessions.attempt_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("joined err %v missing %q", err, want)
		}
	}
}

func TestValidate_MinimalMockConfig(t *testing.T) {
	cfg := &Config{
		Providers: ProvidersConfig{
			Backend:  ProviderEntry{Name: "mock"},
			Realtime: ProviderEntry{Name: "mock"},
		},
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
