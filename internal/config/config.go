// Package config provides configuration loading for serv00-ghost.
// It uses Viper to merge defaults, an optional config file and environment
// variables; cobra flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Password comparison modes for the dashboard login.
const (
	PasswordPlain  = "plain"
	PasswordBcrypt = "bcrypt"
)

// Session cookie modes.
const (
	SessionPassword = "password"
	SessionJWT      = "jwt"
)

// Config holds all runtime configuration for both roles.
type Config struct {
	// ── Master ──────────────────────────────────────────────────────────────
	ListenHost string `mapstructure:"listen_host"`
	Port       int    `mapstructure:"port"`
	// Secret is the X-Cluster-Secret shared by master and agents.
	// Empty means the machine channel accepts everything.
	Secret string `mapstructure:"secret"`
	// AuthPassword guards the dashboard. Empty means open mode.
	AuthPassword string `mapstructure:"auth_password"`
	PasswordHash string `mapstructure:"password_hash"` // plain | bcrypt
	SessionMode  string `mapstructure:"session_mode"`  // password | jwt
	SessionKey   string `mapstructure:"session_key"`

	OnlineThresholdSeconds int    `mapstructure:"online_threshold_seconds"`
	ProxyTimeoutSeconds    int    `mapstructure:"proxy_timeout_seconds"`
	LoginFailDelayMillis   int    `mapstructure:"login_fail_delay_ms"`
	LogMaxBytes            int    `mapstructure:"log_max_bytes"`
	DBPath                 string `mapstructure:"db_path"`
	EventRetention         int    `mapstructure:"event_retention"`
	WithAgent              bool   `mapstructure:"with_agent"`

	// TrustedProxies lists the reverse proxies (IPs or CIDRs) whose
	// X-Forwarded-For is believed. Empty means the socket peer is the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// ── Agent ───────────────────────────────────────────────────────────────
	MasterURL                string `mapstructure:"master_url"`
	NodeID                   string `mapstructure:"node_id"`
	NodeName                 string `mapstructure:"node_name"`
	ExternalURL              string `mapstructure:"external_url"`
	AgentListen              string `mapstructure:"agent_listen"`
	HeartbeatIntervalSeconds int    `mapstructure:"heartbeat_interval_seconds"`
	SSHHost                  string `mapstructure:"ssh_host"`
	SSHPort                  int    `mapstructure:"ssh_port"`
	SSHUser                  string `mapstructure:"ssh_user"`
	SSHPassword              string `mapstructure:"ssh_password"`
	PM2Command               string `mapstructure:"pm2_command"`
	LogLines                 int    `mapstructure:"log_lines"`
	ExecTimeoutSeconds       int    `mapstructure:"exec_timeout_seconds"`

	// ── Logging ─────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // console | json
}

// Load reads config from ./config.yaml or ~/.serv00-ghost/config.yaml and
// falls back to defaults. Environment variables with prefix GHOST_ override
// file values.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.serv00-ghost")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("GHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_host", "0.0.0.0")
	v.SetDefault("port", 8888)
	v.SetDefault("secret", "")
	v.SetDefault("auth_password", "")
	v.SetDefault("password_hash", PasswordPlain)
	v.SetDefault("session_mode", SessionPassword)
	v.SetDefault("session_key", "")
	v.SetDefault("online_threshold_seconds", 30) // 3x the heartbeat interval
	v.SetDefault("proxy_timeout_seconds", 180)
	v.SetDefault("login_fail_delay_ms", 1000)
	v.SetDefault("log_max_bytes", 0)
	v.SetDefault("db_path", "file::memory:")
	v.SetDefault("event_retention", 500)
	v.SetDefault("with_agent", false)
	v.SetDefault("trusted_proxies", []string{})

	v.SetDefault("master_url", "")
	v.SetDefault("node_id", "")
	v.SetDefault("node_name", "")
	v.SetDefault("external_url", "")
	v.SetDefault("agent_listen", ":8889")
	v.SetDefault("heartbeat_interval_seconds", 10)
	v.SetDefault("ssh_host", "")
	v.SetDefault("ssh_port", 22)
	v.SetDefault("ssh_user", "")
	v.SetDefault("ssh_password", "")
	v.SetDefault("pm2_command", "pm2")
	v.SetDefault("log_lines", 100)
	v.SetDefault("exec_timeout_seconds", 60)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// ValidateMaster checks the settings the coordinator depends on.
func (c *Config) ValidateMaster() error {
	switch c.PasswordHash {
	case PasswordPlain, PasswordBcrypt:
	default:
		return fmt.Errorf("unknown password_hash %q (use %q or %q)", c.PasswordHash, PasswordPlain, PasswordBcrypt)
	}
	switch c.SessionMode {
	case SessionPassword:
		if c.PasswordHash == PasswordBcrypt {
			// the cookie would carry the plaintext password; require signed sessions
			return errors.New("password_hash=bcrypt requires session_mode=jwt")
		}
	case SessionJWT:
		if c.SessionKey == "" {
			return errors.New("session_mode=jwt requires session_key")
		}
	default:
		return fmt.Errorf("unknown session_mode %q (use %q or %q)", c.SessionMode, SessionPassword, SessionJWT)
	}
	if c.OnlineThresholdSeconds <= 0 || c.ProxyTimeoutSeconds <= 0 {
		return errors.New("online_threshold_seconds and proxy_timeout_seconds must be positive")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.LoginFailDelayMillis < 0 {
		return errors.New("login_fail_delay_ms must not be negative")
	}
	for _, p := range c.TrustedProxies {
		if net.ParseIP(p) == nil {
			if _, _, err := net.ParseCIDR(p); err != nil {
				return fmt.Errorf("trusted_proxies: %q is neither an IP nor a CIDR", p)
			}
		}
	}
	return nil
}

// ValidateAgent checks the settings the node agent depends on.
func (c *Config) ValidateAgent() error {
	if c.MasterURL == "" {
		return errors.New("agent mode requires master_url")
	}
	if c.HeartbeatIntervalSeconds <= 0 || c.ExecTimeoutSeconds <= 0 || c.LogLines <= 0 {
		return errors.New("heartbeat_interval_seconds, exec_timeout_seconds and log_lines must be positive")
	}
	return nil
}

// OnlineThreshold is how long after its last heartbeat a node counts as online.
func (c *Config) OnlineThreshold() time.Duration {
	return time.Duration(c.OnlineThresholdSeconds) * time.Second
}

// ProxyTimeout bounds a master→node forward.
func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.ProxyTimeoutSeconds) * time.Second
}

// LoginFailDelay is the pause imposed on every failed login. Zero selects
// the server default of one second.
func (c *Config) LoginFailDelay() time.Duration {
	return time.Duration(c.LoginFailDelayMillis) * time.Millisecond
}

// HeartbeatInterval is the agent's reporting period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// ExecTimeout bounds one process-manager invocation on the agent.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.ExecTimeoutSeconds) * time.Second
}
