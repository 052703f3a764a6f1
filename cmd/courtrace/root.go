package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/courtrace/agent/internal/auditstore"
	"github.com/courtrace/agent/internal/captcha"
	"github.com/courtrace/agent/internal/catalog"
	"github.com/courtrace/agent/internal/config"
	"github.com/courtrace/agent/internal/credstore"
	"github.com/courtrace/agent/internal/facade"
	"github.com/courtrace/agent/internal/hub"
	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/notifier"
	"github.com/courtrace/agent/internal/supervisor"
)

// compositionRoot holds every dependency built once per process
// invocation, matching spec.md §9's "replace module-level globals with
// a composition root" REDESIGN FLAG.
type compositionRoot struct {
	cfg         config.Config
	creds       *credstore.Store
	httpFactory *httpclient.Factory
	catalog     *catalog.Catalog
	audit       *auditstore.Store
	notify      *notifier.Notifier
	captchaReg  *captcha.Registry
	hub         *hub.Hub
	supervisor  *supervisor.Supervisor
	facade      *facade.Facade
}

// reexecFlags is every persistent flag worth re-stating on the
// re-exec'd worker subprocess's command line: viper has already
// resolved each one from its flag/env/default precedence chain, so
// replaying the resolved values guarantees the worker reconstructs the
// identical Config regardless of whether the parent process was
// configured via flags or COURTRACE_* environment variables (os/exec
// inherits the parent's environment too, but a deployment that only
// sets flags would otherwise leave the worker unconfigured).
var reexecFlags = []string{
	"base_url", "config_root", "cred_path", "data_dir",
	"rsa_public_key", "return_url", "encryption_secret",
	"notify_group_url", "notify_user_url",
	"notify_success_title", "notify_failure_title", "notify_payment_reminder",
	"endpoints", "default_target", "presets", "failure_keywords",
	"cron_debug", "http_timeout", "keepalive_interval", "monitor_interval",
	"captcha_solver", "captcha_confidence_threshold",
}

// reexecArgs builds the --flag value pairs a worker subprocess needs to
// reconstruct this process's resolved configuration.
func reexecArgs() []string {
	var args []string
	for _, key := range reexecFlags {
		val := viper.GetString(key)
		if val == "" {
			continue
		}
		args = append(args, "--"+flagName(key), val)
	}
	for _, group := range viper.GetStringSlice("notify_groups") {
		args = append(args, "--notify-groups", group)
	}
	for _, user := range viper.GetStringSlice("notify_users") {
		args = append(args, "--notify-users", user)
	}
	if n := viper.GetInt("notify_retry_count"); n > 0 {
		args = append(args, "--notify-retry-count", fmt.Sprint(n))
	}
	if d := viper.GetDuration("notify_retry_delay"); d > 0 {
		args = append(args, "--notify-retry-delay", d.String())
	}
	return args
}

func flagName(viperKey string) string {
	out := make([]byte, 0, len(viperKey))
	for i := 0; i < len(viperKey); i++ {
		if viperKey[i] == '_' {
			out = append(out, '-')
		} else {
			out = append(out, viperKey[i])
		}
	}
	return string(out)
}

// buildRoot constructs every shared subsystem, using reexecArgs so the
// worker subprocesses the supervisor spawns share this process's
// resolved configuration.
func buildRoot() (*compositionRoot, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("courtrace: load config: %w", err)
	}

	var credOpts []credstore.Option
	if cfg.EncryptionSecret != "" {
		credOpts = append(credOpts, credstore.WithEncryptionSecret(cfg.EncryptionSecret))
	}
	creds, err := credstore.New(cfg.CredPath, credOpts...)
	if err != nil {
		return nil, fmt.Errorf("courtrace: open credential store: %w", err)
	}

	httpCfg := httpclient.DefaultConfig()
	if cfg.HTTPTimeout > 0 {
		httpCfg.Timeout = cfg.HTTPTimeout
	}
	httpFactory := httpclient.NewFactory(httpCfg)

	cat := catalog.New(cfg.Presets, 5*time.Minute)

	audit, err := auditstore.Open(cfg.DataDir + "/courtrace.db")
	if err != nil {
		return nil, fmt.Errorf("courtrace: open audit store: %w", err)
	}

	notify := notifier.New(notifier.Config{
		GroupURL:        cfg.NotifyGroupURL,
		UserURL:         cfg.NotifyUserURL,
		Groups:          cfg.NotifyGroups,
		Users:           cfg.NotifyUsers,
		RetryCount:      cfg.NotifyRetryCount,
		RetryDelay:      cfg.NotifyRetryDelay,
		SuccessTitle:    cfg.NotifySuccessTitle,
		FailureTitle:    cfg.NotifyFailureTitle,
		PaymentReminder: cfg.NotifyPaymentReminder,
	}, &http.Client{Timeout: 10 * time.Second})

	captchaReg := captcha.NewRegistry()

	h := hub.New()
	sup, err := supervisor.New(cfg.DataDir, &supervisor.SelfExecRunner{ExtraArgs: reexecArgs()}, h, audit, nil)
	if err != nil {
		return nil, fmt.Errorf("courtrace: open job supervisor: %w", err)
	}

	fac := facade.New(cfg, creds, httpFactory, cat, sup, audit, notify, captchaReg)

	return &compositionRoot{
		cfg:         cfg,
		creds:       creds,
		httpFactory: httpFactory,
		catalog:     cat,
		audit:       audit,
		notify:      notify,
		captchaReg:  captchaReg,
		hub:         h,
		supervisor:  sup,
		facade:      fac,
	}, nil
}

func (r *compositionRoot) Close() {
	r.facade.Shutdown()
	_ = r.audit.Close()
}
