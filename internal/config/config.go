package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringService identifies this application's entries in the OS keyring.
const keyringService = "statq"

// Config represents the application configuration.
type Config struct {
	Connections []Connection `mapstructure:"connections" yaml:"connections"`
	Preferences Preferences  `mapstructure:"preferences" yaml:"preferences"`
}

// Connection represents a saved database connection profile. Passwords
// are not stored in the config file; they live in the OS keyring under
// the profile name.
type Connection struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Driver   string `mapstructure:"driver" yaml:"driver"`
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	Username string `mapstructure:"username" yaml:"username"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`

	// password is carried in memory only, never serialized.
	password string
}

// Preferences holds user preferences.
type Preferences struct {
	DefaultConnection string `mapstructure:"default_connection" yaml:"default_connection"`
	DevMode           bool   `mapstructure:"dev_mode" yaml:"dev_mode"`
}

// Password resolves the connection's password: the in-memory value if
// set, otherwise the OS keyring. Missing entries are not an error; the
// DSN is simply built without a password.
func (c *Connection) Password() string {
	if c.password != "" {
		return c.password
	}
	secret, err := keyring.Get(keyringService, c.Name)
	if err != nil {
		return ""
	}
	return secret
}

// SetPassword sets the in-memory password for this profile.
func (c *Connection) SetPassword(p string) {
	c.password = p
}

// StorePassword writes the profile's password to the OS keyring.
func (c *Connection) StorePassword() error {
	if c.password == "" {
		return nil
	}
	if err := keyring.Set(keyringService, c.Name, c.password); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// DSN builds a PostgreSQL connection string from the connection profile.
func (c *Connection) DSN() string {
	dsn := "postgresql://"
	if c.Username != "" {
		dsn += url.User(c.Username).String()
		if p := c.Password(); p != "" {
			dsn += ":" + url.QueryEscape(p)
		}
		dsn += "@"
	}
	dsn += c.Host
	if c.Port > 0 {
		dsn += ":" + strconv.Itoa(c.Port)
	}
	dsn += "/" + c.Database
	if c.SSLMode != "" {
		dsn += "?sslmode=" + c.SSLMode
	}
	return dsn
}

// DisplayString returns a human-readable summary of the connection.
func (c *Connection) DisplayString() string {
	s := c.Host
	if c.Port > 0 {
		s += ":" + strconv.Itoa(c.Port)
	}
	s += "/" + c.Database
	if c.Username != "" {
		s = c.Username + "@" + s
	}
	return s
}

// ParseDSN parses a PostgreSQL connection string into a Connection.
func ParseDSN(dsn string) (Connection, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return Connection{}, fmt.Errorf("invalid DSN: %w", err)
	}

	conn := Connection{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  u.Query().Get("sslmode"),
	}

	if u.User != nil {
		conn.Username = u.User.Username()
		if p, ok := u.User.Password(); ok {
			conn.password = p
		}
	}

	if portStr := u.Port(); portStr != "" {
		conn.Port, _ = strconv.Atoi(portStr)
	}
	if conn.Port == 0 {
		conn.Port = 5432
	}

	conn.Name = fmt.Sprintf("postgres-%s-%d-%s", conn.Host, conn.Port, conn.Database)

	return conn, nil
}

// HasConnection checks if a connection with the given name already exists.
func (cfg *Config) HasConnection(name string) bool {
	for _, c := range cfg.Connections {
		if c.Name == name {
			return true
		}
	}
	return false
}

// AddConnection appends a connection if it doesn't already exist.
func (cfg *Config) AddConnection(conn Connection) {
	if !cfg.HasConnection(conn.Name) {
		cfg.Connections = append(cfg.Connections, conn)
	}
}
