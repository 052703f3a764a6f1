package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newJobsCmd builds the local job-administration subcommand: list,
// stop, and delete, mirroring the facade operations an external admin
// API would otherwise expose.
func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List, stop, or delete supervised jobs",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsStopCmd(), newJobsDeleteCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every supervised job",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := buildRoot()
			if err != nil {
				return err
			}
			defer root.Close()

			jobs := root.supervisor.ListJobs(nil)
			if len(jobs) == 0 {
				fmt.Println("(no jobs)")
				return nil
			}
			for _, j := range jobs {
				fmt.Printf("%-8s %-12s %-10s %-20s pid=%d\n", j.JobID, j.JobType, j.Status, j.Name, j.PID)
			}
			return nil
		},
	}
}

func newJobsStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <job-id>",
		Short: "Stop a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := buildRoot()
			if err != nil {
				return err
			}
			defer root.Close()
			return root.supervisor.StopJob(context.Background(), args[0])
		},
	}
}

func newJobsDeleteCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job (stopping it first if running)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := buildRoot()
			if err != nil {
				return err
			}
			defer root.Close()
			if args[0] == "all" {
				n, err := root.supervisor.DeleteAllJobs(context.Background(), nil, force)
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d job(s)\n", n)
				return nil
			}
			return root.supervisor.DeleteJob(context.Background(), args[0])
		},
	}
	c.Flags().BoolVar(&force, "force", false, "force-delete even running jobs when deleting all")
	return c
}
