package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("LIBRARY_PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://env@localhost/library")
	t.Setenv("LIBRARY_WRITE_RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("LIBRARY_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("MINIO_USE_SSL", "true")

	path := writeConfig(t, `
port: "8080"
databaseURL: "postgres://file@localhost/library"
apiPrefix: "api_library/"
minioEndpoint: "localhost:9000"
minioBucket: "covers"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://env@localhost/library" {
		t.Fatalf("databaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.StoreDriver != StoreDriverPostgres {
		t.Fatalf("storeDriver = %q, want postgres", cfg.StoreDriver)
	}
	if cfg.APIPrefix != "/api_library" {
		t.Fatalf("apiPrefix = %q, want /api_library", cfg.APIPrefix)
	}
	if cfg.WriteRateLimitPerMinute != 30 {
		t.Fatalf("writeRateLimitPerMinute = %d, want 30", cfg.WriteRateLimitPerMinute)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "127.0.0.1" {
		t.Fatalf("trustedProxies = %v", cfg.TrustedProxies)
	}
	if !cfg.MinioUseSSL {
		t.Fatal("minioUseSSL = false, want true")
	}
	if cfg.CoverMaxBytes != defaultCoverMaxBytes {
		t.Fatalf("coverMaxBytes = %d, want default", cfg.CoverMaxBytes)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("logLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Fatalf("shutdownTimeout = %s", cfg.ShutdownTimeout())
	}
}

func TestLoadMemoryDriverNeedsNoDatabase(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
storeDriver: "Memory"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StoreDriver != StoreDriverMemory {
		t.Fatalf("storeDriver = %q, want memory", cfg.StoreDriver)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing port", content: `storeDriver: memory`},
		{name: "postgres without url", content: `port: "8080"`},
		{name: "unknown driver", content: "port: \"8080\"\nstoreDriver: sqlite"},
		{name: "negative rate limit", content: "port: \"8080\"\nstoreDriver: memory\nwriteRateLimitPerMinute: -1"},
		{name: "minio without bucket", content: "port: \"8080\"\nstoreDriver: memory\nminioEndpoint: localhost:9000"},
		{name: "staff key without issuers", content: "port: \"8080\"\nstoreDriver: memory\nstaffTokenPublicKeyPath: /keys/staff.pem"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("LIBRARY_WRITE_RATE_LIMIT_PER_MINUTE", "lots")
	path := writeConfig(t, "port: \"8080\"\nstoreDriver: memory")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed rate limit")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
