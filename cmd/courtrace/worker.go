package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/courtrace/agent/internal/auditstore"
	"github.com/courtrace/agent/internal/catalog"
	"github.com/courtrace/agent/internal/config"
	"github.com/courtrace/agent/internal/credstore"
	"github.com/courtrace/agent/internal/httpclient"
	"github.com/courtrace/agent/internal/jobrunner"
	"github.com/courtrace/agent/internal/notifier"
)

// newWorkerCmd builds the internal re-exec entry point: the supervisor
// spawns `courtrace worker --job-id <id> --job-type <type>` as its own
// process-group leader (supervisor.SelfExecRunner), and this subcommand
// loads that one job's persisted config and runs its loop until SIGTERM.
func newWorkerCmd() *cobra.Command {
	var jobID, jobType string
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Internal: run a single supervised job (spawned by the supervisor)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("worker: load config: %w", err)
			}

			job, err := jobrunner.LoadJob(cfg.DataDir, jobID)
			if err != nil {
				return err
			}
			if string(job.JobType) != jobType {
				return fmt.Errorf("worker: job %s is type %q, not %q", jobID, job.JobType, jobType)
			}

			deps, err := buildWorkerDeps(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				<-sigCh
				cancel()
			}()

			fmt.Printf("worker %s (%s) starting\n", jobID, jobType)
			return jobrunner.Run(ctx, deps, job)
		},
	}
	f := cmd.Flags()
	f.StringVar(&jobID, "job-id", "", "job ID to run")
	f.StringVar(&jobType, "job-type", "", "job type to run")
	_ = cmd.MarkFlagRequired("job-id")
	_ = cmd.MarkFlagRequired("job-type")
	return cmd
}

// buildWorkerDeps builds the subset of the composition root a worker
// subprocess needs, skipping the supervisor itself (a worker never
// manages other jobs) and the facade (a worker talks to
// internal/monitor, internal/cron, and internal/keepalive directly).
func buildWorkerDeps(cfg config.Config) (jobrunner.Deps, error) {
	var credOpts []credstore.Option
	if cfg.EncryptionSecret != "" {
		credOpts = append(credOpts, credstore.WithEncryptionSecret(cfg.EncryptionSecret))
	}
	creds, err := credstore.New(cfg.CredPath, credOpts...)
	if err != nil {
		return jobrunner.Deps{}, fmt.Errorf("worker: open credential store: %w", err)
	}

	httpCfg := httpclient.DefaultConfig()
	if cfg.HTTPTimeout > 0 {
		httpCfg.Timeout = cfg.HTTPTimeout
	}
	httpFactory := httpclient.NewFactory(httpCfg)

	cat := catalog.New(cfg.Presets, 5*time.Minute)

	audit, err := auditstore.Open(cfg.DataDir + "/courtrace.db")
	if err != nil {
		return jobrunner.Deps{}, fmt.Errorf("worker: open audit store: %w", err)
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
	}, nil)

	return jobrunner.Deps{
		Cfg:         cfg,
		Creds:       creds,
		HTTPFactory: httpFactory,
		Catalog:     cat,
		Audit:       audit,
		Notify:      notify,
	}, nil
}
