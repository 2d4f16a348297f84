package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GameServer holds all configuration for the War of Dots server.
type GameServer struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Protocol version clients must present in their first message.
	ProtocolVersion string `yaml:"protocol_version"`

	// Database
	Database DatabaseConfig `yaml:"database"`

	// SMTP for verification codes. User/Pass come from the
	// EMAIL_USER / EMAIL_PASS environment, never from the file.
	SMTP SMTPConfig `yaml:"smtp"`

	// Logging
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// SMTPConfig holds the outbound mail relay parameters.
type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	From string `yaml:"from"`

	User string `yaml:"-"`
	Pass string `yaml:"-"`
}

// Enabled reports whether outbound email is configured.
func (s SMTPConfig) Enabled() bool {
	return s.User != "" && s.Pass != ""
}

// DefaultGameServer returns GameServer config with sensible defaults.
func DefaultGameServer() GameServer {
	return GameServer{
		BindAddress:     "0.0.0.0",
		Port:            9056,
		ProtocolVersion: "0.13.3",
		LogLevel:        "info",
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "wod",
			Password: "wod",
			DBName:   "wod",
			SSLMode:  "disable",
		},
		SMTP: SMTPConfig{
			Host: "smtp.gmail.com",
			Port: 587,
		},
	}
}

// LoadGameServer loads server config from a YAML file.
// If the file doesn't exist, returns defaults. SMTP credentials are
// taken from the environment in both cases.
func LoadGameServer(path string) (GameServer, error) {
	cfg := DefaultGameServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *GameServer) applyEnv() {
	c.SMTP.User = os.Getenv("EMAIL_USER")
	c.SMTP.Pass = os.Getenv("EMAIL_PASS")
	if c.SMTP.From == "" {
		c.SMTP.From = c.SMTP.User
	}
}
