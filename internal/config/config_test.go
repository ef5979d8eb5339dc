package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if config.Database.DatabasePath == "" {
		t.Error("default database path should not be empty")
	}
	if config.HTTP.Addr() != "0.0.0.0:8080" {
		t.Errorf("expected 0.0.0.0:8080, got %s", config.HTTP.Addr())
	}
	if config.Attendance.RecencyWindow != 5*time.Minute {
		t.Errorf("expected 5m recency window, got %v", config.Attendance.RecencyWindow)
	}
	if config.Mail.Provider != MailProviderLog {
		t.Errorf("expected log mail provider, got %s", config.Mail.Provider)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.HTTP.Port = -1 }, "HTTP port"},
		{"empty database path", func(c *Config) { c.Database.DatabasePath = "" }, "database path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }, "ping interval"},
		{"zero ledger ttl", func(c *Config) { c.Ledger.TTL = 0 }, "ledger ttl"},
		{"negative recency", func(c *Config) { c.Attendance.RecencyWindow = -time.Second }, "recency"},
		{"zero grace", func(c *Config) { c.Cleanup.PendingGrace = 0 }, "pending grace"},
		{"sendgrid without key", func(c *Config) { c.Mail.Provider = MailProviderSendGrid }, "api key"},
		{"unknown mail provider", func(c *Config) { c.Mail.Provider = "smtp" }, "mail provider"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ATTENDANCEHUB_HTTP_PORT", "9090")
	t.Setenv("ATTENDANCEHUB_DATABASE_PATH", "/tmp/attendance-test.db")
	t.Setenv("ATTENDANCEHUB_LEDGER_TTL", "90s")
	t.Setenv("ATTENDANCEHUB_ATTENDANCE_RECENCY_WINDOW", "1m")
	t.Setenv("ATTENDANCEHUB_NATS_URL", "nats://localhost:4222")

	config, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if config.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.DatabasePath != "/tmp/attendance-test.db" {
		t.Errorf("expected overridden database path, got %s", config.Database.DatabasePath)
	}
	if config.Ledger.TTL != 90*time.Second {
		t.Errorf("expected 90s ttl, got %v", config.Ledger.TTL)
	}
	if config.Attendance.RecencyWindow != time.Minute {
		t.Errorf("expected 1m recency window, got %v", config.Attendance.RecencyWindow)
	}
	if config.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected nats url, got %q", config.NATS.URL)
	}
	if config.WebSocket.PingInterval != 30*time.Second {
		t.Errorf("unset keys should keep defaults, got ping interval %v", config.WebSocket.PingInterval)
	}
}

func TestLoadFromEnvClearPhrase(t *testing.T) {
	t.Run("legacy variable", func(t *testing.T) {
		t.Setenv(LegacyClearPhraseEnv, "wipe everything")

		config, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv failed: %v", err)
		}
		if config.ClearPhrase != "wipe everything" {
			t.Errorf("expected legacy phrase, got %q", config.ClearPhrase)
		}
	})

	t.Run("prefixed variable wins", func(t *testing.T) {
		t.Setenv(LegacyClearPhraseEnv, "legacy")
		t.Setenv("ATTENDANCEHUB_CLEAR_PHRASE", "current")

		config, err := LoadFromEnv()
		if err != nil {
			t.Fatalf("LoadFromEnv failed: %v", err)
		}
		if config.ClearPhrase != "current" {
			t.Errorf("expected prefixed phrase, got %q", config.ClearPhrase)
		}
	})
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("ATTENDANCEHUB_MAIL_PROVIDER", "sendgrid")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected sendgrid without api key to be rejected")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeFile(t, "attendancehub.yaml", `
http:
  port: 7070
websocket:
  ping_interval: 10s
  read_timeout: 25s
mail:
  provider: sendgrid
  sendgrid_api_key: SG.test
  from_email: attendance@unilorin.edu.ng
cleanup:
  delay: 30s
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.HTTP.Port != 7070 {
		t.Errorf("expected port 7070, got %d", config.HTTP.Port)
	}
	if config.WebSocket.PingInterval != 10*time.Second || config.WebSocket.ReadTimeout != 25*time.Second {
		t.Errorf("unexpected websocket config: %+v", config.WebSocket)
	}
	if config.Mail.Provider != MailProviderSendGrid || config.Mail.SendGridAPIKey != "SG.test" {
		t.Errorf("unexpected mail config: %+v", config.Mail)
	}
	if config.Cleanup.Delay != 30*time.Second {
		t.Errorf("expected 30s cleanup delay, got %v", config.Cleanup.Delay)
	}
	if config.HTTP.Host != "0.0.0.0" {
		t.Errorf("unset keys should keep defaults, got host %q", config.HTTP.Host)
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := writeFile(t, "attendancehub.json", `{"database": {"driver": "postgres", "dsn": "postgres://localhost/attendance"}}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Database.Driver != "postgres" || config.Database.DSN != "postgres://localhost/attendance" {
		t.Errorf("unexpected database config: %+v", config.Database)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		path := writeFile(t, "broken.json", `{"http": {"port": `)
		if _, err := LoadFromFile(path); err == nil {
			t.Fatal("expected error for malformed file")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		path := writeFile(t, "invalid.yaml", "http:\n  port: 70000\n")
		if _, err := LoadFromFile(path); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	path := writeFile(t, "attendancehub.yaml", "http:\n  port: 7070\n  host: 127.0.0.1\n")
	t.Setenv("ATTENDANCEHUB_HTTP_PORT", "6060")

	config, err := LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}

	if config.HTTP.Port != 6060 {
		t.Errorf("environment should override file, got port %d", config.HTTP.Port)
	}
	if config.HTTP.Host != "127.0.0.1" {
		t.Errorf("file should override defaults, got host %q", config.HTTP.Host)
	}

	noFile, err := LoadConfigWithPrecedence("")
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence without file failed: %v", err)
	}
	if noFile.HTTP.Port != 6060 || noFile.HTTP.Host != "0.0.0.0" {
		t.Errorf("unexpected http config without file: %+v", noFile.HTTP)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "ATTENDANCEHUB_TEST_FROM_DOTENV=loaded\nATTENDANCEHUB_TEST_PRESET=from-file\n")
	t.Setenv("ATTENDANCEHUB_TEST_PRESET", "from-process")
	t.Setenv("ATTENDANCEHUB_TEST_FROM_DOTENV", "")
	os.Unsetenv("ATTENDANCEHUB_TEST_FROM_DOTENV")

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}

	if got := os.Getenv("ATTENDANCEHUB_TEST_FROM_DOTENV"); got != "loaded" {
		t.Errorf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("ATTENDANCEHUB_TEST_PRESET"); got != "from-process" {
		t.Errorf("existing variables should not be overridden, got %q", got)
	}
}

func TestConfigureLogging(t *testing.T) {
	previous := log.GetLevel()
	defer log.SetLevel(previous)
	defer log.SetFormatter(&log.TextFormatter{})

	if err := ConfigureLogging(&LogConfig{Level: "debug", Format: "json"}); err != nil {
		t.Fatalf("ConfigureLogging failed: %v", err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", log.GetLevel())
	}
	if _, ok := log.StandardLogger().Formatter.(*log.JSONFormatter); !ok {
		t.Error("expected JSON formatter")
	}

	if err := ConfigureLogging(&LogConfig{Level: "loud", Format: "text"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
