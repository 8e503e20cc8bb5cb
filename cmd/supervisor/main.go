// cmd/supervisor/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamzrod/liveness-supervisor/internal/config"
	"github.com/tamzrod/liveness-supervisor/internal/endpoint"
	"github.com/tamzrod/liveness-supervisor/internal/logger"
	"github.com/tamzrod/liveness-supervisor/internal/resetcause"
)

func main() {
	if err := mainE(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return NewRootCmd().ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "supervisor SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		SilenceUsage: true,

		Long: `supervisor feeds a hardware watchdog only while every monitored worker
keeps reporting progress. A stalled worker starves the watchdog and the
device resets.

With the sim driver, SIGUSR1 plays the role of the board button: it stops
the gated worker, and a second press resumes it before the window closes.
`,
	}

	rootCmd.AddCommand(
		NewRunCmd(),
		NewValidateCmd(),
		NewResetCauseCmd(),
	)

	return rootCmd
}

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "", "path to the YAML configuration (empty = reference board)")
}

// loadConfig returns the reference board when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse([]byte("{}"))
	}
	return config.Load(path)
}

func newLogger(c *config.Config) *zap.Logger {
	return logger.New(c.Logging.Level, logger.Format(c.Logging.Format))
}

func NewRunCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use: "run",

		Short: "Run the workers, the supervisor and the watchdog until interrupted",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			zl := newLogger(c)
			defer func() { _ = zl.Sync() }()

			a, err := newApp(c, zl.Sugar())
			if err != nil {
				return err
			}
			defer a.Close()

			return a.run(cmd.Context())
		},
	}
	addConfigFlag(cmd, &cfgPath)

	return cmd
}

func NewValidateCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use: "validate",

		Short: "Load and validate a configuration, then print the effective board",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config OK\n")
			fmt.Fprintf(out, "cycle=%dms window=[%dms, %dms] required=%v driver=%s\n",
				c.Supervisor.CycleMs,
				c.Supervisor.WindowMinMs,
				c.Supervisor.WindowMaxMs,
				*c.Supervisor.Required,
				c.Watchdog.Driver,
			)
			for _, w := range c.Workers {
				flags := ""
				if w.Gated {
					flags = " gated"
				}
				fmt.Fprintf(out, "worker %s: %s every %dms%s\n", w.Name, w.Workload, w.PeriodMs, flags)
			}
			return nil
		},
	}
	addConfigFlag(cmd, &cfgPath)

	return cmd
}

func NewResetCauseCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use: "reset-cause",

		Short: "Report and clear the reset cause register of the configured device",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}

			zl := newLogger(c)
			defer func() { _ = zl.Sync() }()

			pool := endpoint.NewPool()
			defer func() { _ = pool.Close() }()

			hw, err := openHardware(c, pool)
			if err != nil {
				return err
			}

			cause, err := resetcause.Report(hw.cause, zl.Sugar().Named(logger.ComponentResetCause))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "0x%08x: %s\n",
				uint32(cause),
				strings.Join(resetcause.Classify(cause), ", "),
			)
			return nil
		},
	}
	addConfigFlag(cmd, &cfgPath)

	return cmd
}
