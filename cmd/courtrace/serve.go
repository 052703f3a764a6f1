package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// newServeCmd builds the daemon subcommand: it opens the composition
// root (which reconciles crashed jobs on startup) and blocks until
// signaled, keeping every supervised worker subprocess alive underneath
// it. The external chat-bot and admin-API surfaces spec.md places out
// of scope would mount their own HTTP/IM handlers on top of the same
// *facade.Facade this builds; none exist here.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the booking supervisor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := buildRoot()
			if err != nil {
				return err
			}
			defer root.Close()

			fmt.Printf("courtrace serving: base_url=%s data_dir=%s\n", root.cfg.BaseURL, root.cfg.DataDir)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
			go func() {
				sig := <-sigCh
				fmt.Printf("received %s, shutting down...\n", sig)
				cancel()
			}()

			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			root.supervisor.Shutdown(shutdownCtx)
			return nil
		},
	}
}
