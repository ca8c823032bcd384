package cli

import (
	"github.com/spf13/cobra"

	"github.com/gantry-run/gantry/internal/config"
	"github.com/gantry-run/gantry/internal/loader"
	"github.com/gantry-run/gantry/internal/marshal"
	"github.com/gantry-run/gantry/internal/worker"
)

// NewWorkerCommand creates the worker command. This is the process a
// pool spawns: it speaks frames on stdin/stdout and keeps every other
// byte of output on stderr.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run a handler worker on stdin/stdout",
		Long: `Run a handler worker.

The worker announces readiness on stdout, then serves execute, ping and
shutdown requests line by line until stdin closes. Hosts spawn this
command; it is not meant for interactive use.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.Project)
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			log := newLogger(cfg, rootOpts.Verbose, cmd.ErrOrStderr())

			ld := loader.New(loader.Options{
				Diagnostics:  cmd.ErrOrStderr(),
				ExtraSymbols: worker.HostSymbols(),
			})
			runner := worker.NewRunner(rootOpts.Project, ld, marshal.Default, log)
			srv := worker.NewServer(cmd.InOrStdin(), cmd.OutOrStdout(), runner, log)
			return srv.Run()
		},
	}
	return cmd
}
