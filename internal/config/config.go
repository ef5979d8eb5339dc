package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	dbconfig "attendancehub/pkg/database"
)

// EnvPrefix namespaces every environment override, e.g. ATTENDANCEHUB_HTTP_PORT.
const EnvPrefix = "ATTENDANCEHUB"

// LegacyClearPhraseEnv is still read for the global clear phrase.
const LegacyClearPhraseEnv = "PHRASE_TO_CLEAR_FINGERPRINTS"

// Mail providers.
const (
	MailProviderLog      = "log"
	MailProviderSendGrid = "sendgrid"
)

type Config struct {
	Database   *dbconfig.Config  `mapstructure:"database"`
	HTTP       *HTTPConfig       `mapstructure:"http"`
	WebSocket  *WebSocketConfig  `mapstructure:"websocket"`
	Ledger     *LedgerConfig     `mapstructure:"ledger"`
	Attendance *AttendanceConfig `mapstructure:"attendance"`
	Cleanup    *CleanupConfig    `mapstructure:"cleanup"`
	Mail       *MailConfig       `mapstructure:"mail"`
	NATS       *NATSConfig       `mapstructure:"nats"`
	Log        *LogConfig        `mapstructure:"log"`

	// ClearPhrase confirms clear_fingerprints when the requester's level
	// adviser has no phrase of their own.
	ClearPhrase string `mapstructure:"clear_phrase"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr is the listen address.
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	MaxFrameSize int64         `mapstructure:"max_frame_size"`
}

type LedgerConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AttendanceConfig struct {
	RecencyWindow time.Duration `mapstructure:"recency_window"`
}

// CleanupConfig drives the one-shot sweep of students whose enrollment
// never completed.
type CleanupConfig struct {
	Delay        time.Duration `mapstructure:"delay"`
	PendingGrace time.Duration `mapstructure:"pending_grace"`
}

type MailConfig struct {
	Provider       string `mapstructure:"provider"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromEmail      string `mapstructure:"from_email"`
	StudentDomain  string `mapstructure:"student_domain"`
	QueueSize      int    `mapstructure:"queue_size"`
}

// NATSConfig enables domain event publishing when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: dbconfig.DefaultConfig(),
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			MaxFrameSize: 64 * 1024,
		},
		Ledger: &LedgerConfig{
			TTL:           2 * time.Minute,
			SweepInterval: time.Minute,
		},
		Attendance: &AttendanceConfig{
			RecencyWindow: 5 * time.Minute,
		},
		Cleanup: &CleanupConfig{
			Delay:        10 * time.Minute,
			PendingGrace: 10 * time.Minute,
		},
		Mail: &MailConfig{
			Provider:      MailProviderLog,
			FromName:      "Attendance System",
			FromEmail:     "noreply@attendancehub.local",
			StudentDomain: "students.unilorin.edu.ng",
			QueueSize:     100,
		},
		NATS: &NATSConfig{},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) Validate() error {
	if c.Database == nil {
		return errors.New("database configuration is required")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.HTTP == nil {
		return errors.New("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port.
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return errors.New("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return errors.New("WebSocket read timeout must be longer than the ping interval")
	}
	if c.WebSocket.MaxFrameSize <= 0 {
		return errors.New("WebSocket max frame size must be positive")
	}

	if c.Ledger == nil || c.Ledger.TTL <= 0 {
		return errors.New("ledger ttl must be positive")
	}
	if c.Ledger.SweepInterval <= 0 {
		return errors.New("ledger sweep interval must be positive")
	}

	if c.Attendance == nil || c.Attendance.RecencyWindow < 0 {
		return errors.New("attendance recency window cannot be negative")
	}

	if c.Cleanup == nil || c.Cleanup.Delay < 0 {
		return errors.New("cleanup delay cannot be negative")
	}
	if c.Cleanup.PendingGrace <= 0 {
		return errors.New("cleanup pending grace must be positive")
	}

	if c.Mail == nil {
		return errors.New("mail configuration is required")
	}
	switch c.Mail.Provider {
	case MailProviderLog:
	case MailProviderSendGrid:
		if c.Mail.SendGridAPIKey == "" {
			return errors.New("sendgrid api key is required for the sendgrid mail provider")
		}
		if c.Mail.FromEmail == "" {
			return errors.New("mail from address cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported mail provider %q", c.Mail.Provider)
	}
	if c.Mail.QueueSize <= 0 {
		return errors.New("mail queue size must be positive")
	}

	if c.Log == nil {
		return errors.New("log configuration is required")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}

	if c.NATS == nil {
		c.NATS = &NATSConfig{}
	}
	return nil
}

// LoadDotEnv reads KEY=VALUE files into the process environment. Missing
// files are skipped and variables already set are left alone.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadFromEnv applies ATTENDANCEHUB_* overrides to the defaults.
func LoadFromEnv() (*Config, error) {
	v := newViper(true)
	return decode(v)
}

// LoadFromFile applies a YAML or JSON file to the defaults. The environment
// is not consulted.
func LoadFromFile(path string) (*Config, error) {
	v := newViper(false)
	if err := readFile(v, path); err != nil {
		return nil, err
	}
	return decode(v)
}

// LoadConfigWithPrecedence resolves environment over file over defaults.
// An empty path skips the file; a path that cannot be read is an error.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	v := newViper(true)
	if path != "" {
		if err := readFile(v, path); err != nil {
			return nil, err
		}
	}
	return decode(v)
}

func newViper(withEnv bool) *viper.Viper {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		_ = v.BindEnv("clear_phrase", EnvPrefix+"_CLEAR_PHRASE", LegacyClearPhraseEnv)
	}
	return v
}

func readFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.DatabasePath)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.Database.ConnMaxIdleTime)

	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.max_frame_size", d.WebSocket.MaxFrameSize)

	v.SetDefault("ledger.ttl", d.Ledger.TTL)
	v.SetDefault("ledger.sweep_interval", d.Ledger.SweepInterval)

	v.SetDefault("attendance.recency_window", d.Attendance.RecencyWindow)

	v.SetDefault("cleanup.delay", d.Cleanup.Delay)
	v.SetDefault("cleanup.pending_grace", d.Cleanup.PendingGrace)

	v.SetDefault("mail.provider", d.Mail.Provider)
	v.SetDefault("mail.sendgrid_api_key", d.Mail.SendGridAPIKey)
	v.SetDefault("mail.from_name", d.Mail.FromName)
	v.SetDefault("mail.from_email", d.Mail.FromEmail)
	v.SetDefault("mail.student_domain", d.Mail.StudentDomain)
	v.SetDefault("mail.queue_size", d.Mail.QueueSize)

	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject_prefix", d.NATS.SubjectPrefix)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("clear_phrase", d.ClearPhrase)
}

// ConfigureLogging applies the log section to the standard logrus logger.
func ConfigureLogging(c *LogConfig) error {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
