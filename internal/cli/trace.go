package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantry-run/gantry/internal/config"
	"github.com/gantry-run/gantry/internal/trace"
)

// NewTraceCommand creates the trace command group for inspecting
// recorded invocations.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded invocations",
	}
	cmd.AddCommand(newTraceListCommand(rootOpts))
	cmd.AddCommand(newTraceLogsCommand(rootOpts))
	return cmd
}

func openTraceStore(rootOpts *RootOptions) (*trace.Store, error) {
	cfg, err := config.Load(rootOpts.Project)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}
	store, err := trace.Open(filepath.Join(rootOpts.Project, cfg.Trace.Path))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open trace store", err)
	}
	return store, nil
}

func newTraceListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit       int
		handlerName string
	)

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List recent invocations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTraceStore(rootOpts)
			if err != nil {
				return err
			}
			defer store.Close()

			var invocations []trace.Invocation
			if handlerName != "" {
				invocations, err = store.ByHandler(cmd.Context(), handlerName, limit)
			} else {
				invocations, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "read invocations", err)
			}

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if formatter.Format == "json" {
				return formatter.Success(invocations)
			}
			return formatter.Success(renderInvocationTable(invocations))
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum invocations to list")
	cmd.Flags().StringVar(&handlerName, "handler", "", "only list invocations of this handler")
	return cmd
}

func newTraceLogsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logs <invocation-id>",
		Short:         "Show one invocation's captured handler logs",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openTraceStore(rootOpts)
			if err != nil {
				return err
			}
			defer store.Close()

			logs, err := store.Logs(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read invocation logs", err)
			}

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			if formatter.Format == "json" {
				return formatter.Success(logs)
			}
			var b strings.Builder
			for _, rec := range logs {
				fmt.Fprintf(&b, "%s [%s] %s %s\n", rec.Timestamp, rec.Level, rec.Handler, rec.Message)
			}
			return formatter.Success(strings.TrimRight(b.String(), "\n"))
		},
	}
	return cmd
}

func renderInvocationTable(invocations []trace.Invocation) string {
	if len(invocations) == 0 {
		return "no invocations recorded"
	}
	var b strings.Builder
	for _, inv := range invocations {
		status := "ok"
		if !inv.Success {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s  %-4s  %-20s  %4dms  %s\n",
			inv.CreatedAt.Format("2006-01-02 15:04:05"), status, inv.HandlerName, inv.ExecutionTimeMs, inv.HandlerPath)
	}
	return strings.TrimRight(b.String(), "\n")
}
