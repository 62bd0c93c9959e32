// Package config loads the single immutable configuration record every
// component is constructed from. Loading itself (env parsing, file
// discovery) is the only viper-specific part; everything downstream accepts
// a *Config by constructor argument, never a global.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable, process-wide settings record built once at
// startup (spec.md §9: "configuration is a single immutable record").
type Config struct {
	// ListenAddr is the address the HTTP surface binds to.
	ListenAddr string

	// DataRoot is the root directory under which git/, settings/,
	// templates/, and inventory/ live (spec.md §6).
	DataRoot string

	// ProcessSecret seeds the credential vault's encryption key.
	ProcessSecret string

	// LogLevel and LogFormat configure internal/logging.
	LogLevel  string
	LogFormat string

	// ScanMaxConcurrency bounds the scan subsystem's per-job worker pool.
	ScanMaxConcurrency int
	// ScanJobTTL is how long a finished or running job survives before purge.
	ScanJobTTL time.Duration
	// PingTimeout and PingRetries bound the liveness prober.
	PingTimeout time.Duration
	PingRetries int
	// AuthTimeout bounds a single driver/SSH authentication attempt.
	AuthTimeout time.Duration

	// CacheDefaultTTL is used when a cache Set call omits an explicit TTL.
	CacheDefaultTTL time.Duration

	// GitCloneTimeout, GitPullTimeout, GitRemoteTimeout bound the
	// corresponding git child operations (spec.md §5).
	GitCloneTimeout  time.Duration
	GitPullTimeout   time.Duration
	GitRemoteTimeout time.Duration

	// SMSBaseURL and SMSToken configure the GraphQL/REST client used by
	// the Device-Set Query Engine and onboarding submission.
	SMSBaseURL string
	SMSToken   string
	SMSTimeout time.Duration
}

// defaults mirrors spec.md's stated constants (§4.4, §4.7, §5).
func defaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_root", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("scan_max_concurrency", 10)
	v.SetDefault("scan_job_ttl", "24h")
	v.SetDefault("ping_timeout", "1.5s")
	v.SetDefault("ping_retries", 3)
	v.SetDefault("auth_timeout", "5s")
	v.SetDefault("cache_default_ttl", "600s")
	v.SetDefault("git_clone_timeout", "120s")
	v.SetDefault("git_pull_timeout", "60s")
	v.SetDefault("git_remote_timeout", "10s")
	v.SetDefault("sms_timeout", "30s")
}

// Load builds a Config from environment variables (prefixed COCKPIT_) and,
// if present, a config file named by configFile (empty to skip).
func Load(configFile string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("COCKPIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	secret := v.GetString("process_secret")
	if secret == "" {
		return nil, fmt.Errorf("config: process_secret is required")
	}

	return &Config{
		ListenAddr:         v.GetString("listen_addr"),
		DataRoot:           v.GetString("data_root"),
		ProcessSecret:      secret,
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		ScanMaxConcurrency: v.GetInt("scan_max_concurrency"),
		ScanJobTTL:         v.GetDuration("scan_job_ttl"),
		PingTimeout:        v.GetDuration("ping_timeout"),
		PingRetries:        v.GetInt("ping_retries"),
		AuthTimeout:        v.GetDuration("auth_timeout"),
		CacheDefaultTTL:    v.GetDuration("cache_default_ttl"),
		GitCloneTimeout:    v.GetDuration("git_clone_timeout"),
		GitPullTimeout:     v.GetDuration("git_pull_timeout"),
		GitRemoteTimeout:   v.GetDuration("git_remote_timeout"),
		SMSBaseURL:         v.GetString("sms_base_url"),
		SMSToken:           v.GetString("sms_token"),
		SMSTimeout:         v.GetDuration("sms_timeout"),
	}, nil
}
