package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/stockd/cmd/importctl/cli"
	"github.com/odyssey-erp/stockd/internal/app"
)

type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if exit, ok := err.(exitError); ok {
		os.Exit(exit.code)
	}
	fmt.Fprintln(os.Stderr, "importctl:", err)
	os.Exit(cli.ExitFailure)
}

func newRootCommand() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:           "importctl",
		Short:         "Import product and stock files into stockd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")

	// withCLI connects to storage, runs fn and converts its exit code.
	withCLI := func(cmd *cobra.Command, fn func(*cli.ImportCLI) int) error {
		cfg, err := app.LoadConfig(envFile)
		if err != nil {
			return err
		}
		logger := app.NewLoggerTo(cfg, cmd.ErrOrStderr())
		services, err := app.NewServices(cmd.Context(), cfg, logger, app.ServicesOptions{})
		if err != nil {
			return err
		}
		defer services.Close()

		c, err := cli.NewImportCLI(services.Reconciler, services.Importer)
		if err != nil {
			return err
		}
		if code := fn(c); code != cli.ExitOK {
			return exitError{code: code}
		}
		return nil
	}

	var (
		kind       string
		jsonOutput bool
	)
	run := &cobra.Command{
		Use:   "run FILE",
		Short: "Parse a CSV or XLSX file and reconcile it synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCLI(cmd, func(c *cli.ImportCLI) int {
				return c.ImportCommand(cmd.Context(), cli.ImportOptions{
					Kind:       kind,
					Path:       args[0],
					JSONOutput: jsonOutput,
					Stdout:     cmd.OutOrStdout(),
					Stderr:     cmd.ErrOrStderr(),
				})
			})
		},
	}
	run.Flags().StringVarP(&kind, "type", "t", "", "import type: products or stocks")
	run.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	_ = run.MarkFlagRequired("type")

	var statusJSON bool
	status := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show a stored import job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCLI(cmd, func(c *cli.ImportCLI) int {
				return c.StatusCommand(cmd.Context(), cli.StatusOptions{
					JobID:      args[0],
					JSONOutput: statusJSON,
					Stdout:     cmd.OutOrStdout(),
					Stderr:     cmd.ErrOrStderr(),
				})
			})
		},
	}
	status.Flags().BoolVar(&statusJSON, "json", false, "print the job as JSON")

	root.AddCommand(run, status)
	return root
}
