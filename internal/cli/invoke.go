package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gantry-run/gantry/internal/config"
	"github.com/gantry-run/gantry/internal/handler"
	"github.com/gantry-run/gantry/internal/pool"
	"github.com/gantry-run/gantry/internal/trace"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Name    string
	Payload string
	Meta    []string
	Query   []string

	// execute is swappable for tests; the default spawns a one-worker
	// pool running this binary's worker command.
	execute func(ctx context.Context, opts *InvokeOptions, handlerPath string, ictx *handler.InvocationContext) (*handler.ExecutionResult, error)
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <handler-path>",
		Short: "Invoke one handler through a worker",
		Long: `Invoke one handler through a worker process.

Example:
  gantry invoke src/handlers/api/CreateUser.go --payload '{"name":"ada"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "handler name (defaults to the file's base name)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "invocation payload as JSON")
	cmd.Flags().StringArrayVar(&opts.Meta, "meta", nil, "metadata entry key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Query, "query", nil, "query parameter key=value (repeatable)")

	return cmd
}

func runInvoke(cmd *cobra.Command, opts *InvokeOptions, handlerPath string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ictx, err := buildInvocationContext(opts, handlerPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid invocation", err)
	}

	execute := opts.execute
	if execute == nil {
		execute = poolExecute
	}
	formatter.VerboseLog("invoking %s as %s", handlerPath, ictx.HandlerName)

	result, err := execute(cmd.Context(), opts, handlerPath, ictx)
	if err != nil {
		return WrapExitError(ExitCommandError, "invocation transport failed", err)
	}

	var rendered any = result
	if formatter.Format != "json" {
		rendered = renderResult(result)
	}
	if err := formatter.Success(rendered); err != nil {
		return err
	}
	if !result.Success {
		return NewExitError(ExitFailure, "handler failed: "+firstLine(result.ErrorMessage()))
	}
	return nil
}

// buildInvocationContext assembles the invocation context from flags.
func buildInvocationContext(opts *InvokeOptions, handlerPath string) (*handler.InvocationContext, error) {
	var payload any
	if err := json.Unmarshal([]byte(opts.Payload), &payload); err != nil {
		return nil, fmt.Errorf("invalid --payload JSON: %w", err)
	}

	name := opts.Name
	if name == "" {
		base := filepath.Base(handlerPath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	ictx := handler.NewContext(name, payload)
	ictx.HandlerPath = handlerPath
	for _, kv := range opts.Meta {
		k, v, err := splitKV(kv)
		if err != nil {
			return nil, fmt.Errorf("invalid --meta: %w", err)
		}
		ictx.Metadata[k] = v
	}
	for _, kv := range opts.Query {
		k, v, err := splitKV(kv)
		if err != nil {
			return nil, fmt.Errorf("invalid --query: %w", err)
		}
		ictx.QueryParams[k] = v
	}
	return ictx, nil
}

// poolExecute runs the invocation through a freshly spawned one-worker
// pool whose worker is this same binary.
func poolExecute(ctx context.Context, opts *InvokeOptions, handlerPath string, ictx *handler.InvocationContext) (*handler.ExecutionResult, error) {
	cfg, err := config.Load(opts.Project)
	if err != nil {
		return nil, err
	}
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate own binary: %w", err)
	}

	var recorder pool.Recorder
	if cfg.Trace.Enabled {
		store, err := trace.Open(filepath.Join(opts.Project, cfg.Trace.Path))
		if err != nil {
			return nil, err
		}
		defer store.Close()
		recorder = store
	}

	log := newLogger(cfg, opts.Verbose, os.Stderr)
	p, err := pool.New(ctx, pool.Options{
		Command: pool.Command{
			Path: self,
			Args: []string{"worker", "--project", opts.Project},
			Env:  os.Environ(),
		},
		Size:           1,
		ReadyTimeout:   cfg.Workers.ReadyTimeout.Std(),
		ExecuteTimeout: cfg.Workers.ExecuteTimeout.Std(),
		Recorder:       recorder,
		Log:            log,
	})
	if err != nil {
		return nil, err
	}
	defer p.Close()

	return p.Execute(ctx, handlerPath, ictx)
}

// renderResult shapes the execution result for output. Text format
// prints the JSON rendering too; invocation results are structured
// data either way.
func renderResult(result *handler.ExecutionResult) any {
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("unrenderable result: %v", err)
	}
	return string(b)
}

func splitKV(kv string) (string, string, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok || k == "" {
		return "", "", fmt.Errorf("want key=value, got %q", kv)
	}
	return k, v, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
