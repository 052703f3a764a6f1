// Command courtrace is the single static binary that replaces every
// shell entrypoint the original tooling was spread across: a `serve`
// daemon subcommand, an interactive `login`, the internal `worker`
// re-exec target the supervisor spawns per job, and a local `jobs`
// administration subcommand.
//
// Grounded on the teacher's cmd/claudeops/main.go: cobra flags bound to
// viper keys, environment variables read with a fixed prefix, and a
// single place that constructs every dependency and injects it rather
// than reaching for package-level state.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "courtrace",
		Short: "University sports-venue booking automation",
	}

	f := rootCmd.PersistentFlags()
	f.String("base-url", "", "booking system base URL")
	f.String("config-root", "./data", "root directory for persisted state")
	f.String("cred-path", "", "path to the credentials file (default <config-root>/credentials.json)")
	f.String("data-dir", "", "path to the jobs directory (default <config-root>/jobs)")
	f.String("rsa-public-key", "", "PEM-encoded RSA public key used to encrypt order payloads")
	f.String("return-url", "", "order confirmation return URL")
	f.String("encryption-secret", "", "secret used to encrypt stored credentials at rest")
	f.String("notify-group-url", "", "OneBot-compatible group message endpoint")
	f.String("notify-user-url", "", "OneBot-compatible private message endpoint")
	f.StringSlice("notify-groups", nil, "group IDs to notify")
	f.StringSlice("notify-users", nil, "user IDs to notify")
	f.Int("notify-retry-count", 3, "notification delivery retry budget")
	f.Duration("notify-retry-delay", 0, "base delay between notification retries")
	f.String("notify-success-title", "", "title line for a successful order notification")
	f.String("notify-failure-title", "", "title line for a failed order notification")
	f.String("notify-payment-reminder", "", "trailing payment reminder appended to successful order notifications")
	f.String("endpoints", "", "JSON-encoded EndpointSet overriding upstream paths")
	f.String("default-target", "", "JSON-encoded default BookingTarget")
	f.String("presets", "", "JSON array of venue/field-type presets")
	f.Bool("cron-debug", false, "fire each Schedule job's warm-up and shots once immediately instead of daily")
	f.String("failure-keywords", "", "JSON array overriding the default order-response failure keywords")
	f.Duration("http-timeout", 0, "per-request HTTP timeout")
	f.Duration("keepalive-interval", 0, "keep-alive ping interval")
	f.Duration("monitor-interval", 0, "default monitor tick interval")
	f.String("captcha-solver", "", "registered captcha solver name")
	f.Float64("captcha-confidence-threshold", 0, "minimum solver confidence accepted without human fallback")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("base_url", "base-url")
	bindFlag("config_root", "config-root")
	bindFlag("cred_path", "cred-path")
	bindFlag("data_dir", "data-dir")
	bindFlag("rsa_public_key", "rsa-public-key")
	bindFlag("return_url", "return-url")
	bindFlag("encryption_secret", "encryption-secret")
	bindFlag("notify_group_url", "notify-group-url")
	bindFlag("notify_user_url", "notify-user-url")
	bindFlag("notify_groups", "notify-groups")
	bindFlag("notify_users", "notify-users")
	bindFlag("notify_retry_count", "notify-retry-count")
	bindFlag("notify_retry_delay", "notify-retry-delay")
	bindFlag("notify_success_title", "notify-success-title")
	bindFlag("notify_failure_title", "notify-failure-title")
	bindFlag("notify_payment_reminder", "notify-payment-reminder")
	bindFlag("endpoints", "endpoints")
	bindFlag("default_target", "default-target")
	bindFlag("presets", "presets")
	bindFlag("cron_debug", "cron-debug")
	bindFlag("failure_keywords", "failure-keywords")
	bindFlag("http_timeout", "http-timeout")
	bindFlag("keepalive_interval", "keepalive-interval")
	bindFlag("monitor_interval", "monitor-interval")
	bindFlag("captcha_solver", "captcha-solver")
	bindFlag("captcha_confidence_threshold", "captcha-confidence-threshold")

	viper.SetEnvPrefix("COURTRACE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(newServeCmd(), newLoginCmd(), newWorkerCmd(), newJobsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
