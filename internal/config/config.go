// Package config loads courtrace's runtime configuration from viper,
// which merges command-line flags, COURTRACE_-prefixed environment
// variables, and built-in defaults, exactly as the teacher binds
// CLAUDEOPS_* configuration in its own internal/config package.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/courtrace/agent/internal/bookingerr"
	"github.com/courtrace/agent/internal/model"
)

// Config holds every runtime setting the composition root needs to
// build the credential store, HTTP client factory, booking API clients,
// job supervisor, notifier, and audit store.
type Config struct {
	BaseURL    string
	ConfigRoot string
	CredPath   string
	DataDir    string

	Endpoints model.EndpointSet

	RSAPublicKeyPEM string
	ReturnURL       string

	EncryptionSecret string

	NotifyGroupURL      string
	NotifyUserURL       string
	NotifyGroups        []string
	NotifyUsers         []string
	NotifyRetryCount    int
	NotifyRetryDelay    time.Duration
	NotifySuccessTitle  string
	NotifyFailureTitle  string
	NotifyPaymentReminder string

	DefaultTarget model.BookingTarget
	Presets       []model.Preset

	CronDebug       bool
	FailureKeywords []string

	HTTPTimeout       time.Duration
	KeepAliveInterval time.Duration
	MonitorInterval   time.Duration

	CaptchaSolver              string
	CaptchaConfidenceThreshold float64
}

// defaultFailureKeywords mirrors original_source/sja_booking/order.py's
// keyword scan; overridable per deployment per REDESIGN FLAG #4.
var defaultFailureKeywords = []string{
	"失败", "错误", "超时", "登录", "权限", "不存在", "已满", "不可用",
}

// Load reads configuration from viper, which cmd/courtrace wires up
// from flags and the COURTRACE_ environment prefix.
func Load() (Config, error) {
	cfg := Config{
		BaseURL:    viper.GetString("base_url"),
		ConfigRoot: viper.GetString("config_root"),
		CredPath:   viper.GetString("cred_path"),
		DataDir:    viper.GetString("data_dir"),

		RSAPublicKeyPEM: viper.GetString("rsa_public_key"),
		ReturnURL:       viper.GetString("return_url"),

		EncryptionSecret: viper.GetString("encryption_secret"),

		NotifyGroupURL:   viper.GetString("notify_group_url"),
		NotifyUserURL:    viper.GetString("notify_user_url"),
		NotifyGroups:     viper.GetStringSlice("notify_groups"),
		NotifyUsers:      viper.GetStringSlice("notify_users"),
		NotifyRetryCount: viper.GetInt("notify_retry_count"),
		NotifyRetryDelay: viper.GetDuration("notify_retry_delay"),
		NotifySuccessTitle:    viper.GetString("notify_success_title"),
		NotifyFailureTitle:    viper.GetString("notify_failure_title"),
		NotifyPaymentReminder: viper.GetString("notify_payment_reminder"),

		CronDebug: viper.GetBool("cron_debug"),

		HTTPTimeout:       viper.GetDuration("http_timeout"),
		KeepAliveInterval: viper.GetDuration("keepalive_interval"),
		MonitorInterval:   viper.GetDuration("monitor_interval"),

		CaptchaSolver:              viper.GetString("captcha_solver"),
		CaptchaConfidenceThreshold: viper.GetFloat64("captcha_confidence_threshold"),
	}

	if err := unmarshalJSONFlag(viper.GetString("endpoints"), &cfg.Endpoints); err != nil {
		return Config{}, fmt.Errorf("config: parse endpoints: %w", err)
	}
	if err := unmarshalJSONFlag(viper.GetString("default_target"), &cfg.DefaultTarget); err != nil {
		return Config{}, fmt.Errorf("config: parse default_target: %w", err)
	}
	if raw := viper.GetString("presets"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Presets); err != nil {
			return Config{}, fmt.Errorf("config: parse presets: %w", err)
		}
	}
	if raw := viper.GetString("failure_keywords"); raw != "" {
		var keywords []string
		if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
			return Config{}, fmt.Errorf("config: parse failure_keywords: %w", err)
		}
		cfg.FailureKeywords = keywords
	}
	if len(cfg.FailureKeywords) == 0 {
		cfg.FailureKeywords = append([]string(nil), defaultFailureKeywords...)
	}
	bookingerr.SetFailureKeywords(cfg.FailureKeywords)

	applyDefaults(&cfg)
	return cfg, nil
}

func unmarshalJSONFlag(raw string, out any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}

func applyDefaults(cfg *Config) {
	if cfg.ConfigRoot == "" {
		cfg.ConfigRoot = "./data"
	}
	if cfg.CredPath == "" {
		cfg.CredPath = cfg.ConfigRoot + "/credentials.json"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfg.ConfigRoot + "/jobs"
	}
	if cfg.NotifyRetryCount <= 0 {
		cfg.NotifyRetryCount = 3
	}
	if cfg.NotifyRetryDelay <= 0 {
		cfg.NotifyRetryDelay = 2 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 15 * time.Minute
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.CaptchaConfidenceThreshold <= 0 {
		cfg.CaptchaConfidenceThreshold = 0.3
	}
	if cfg.Endpoints.CurrentUser == "" {
		cfg.Endpoints.CurrentUser = "/system/user/currentUser"
	}
}
