package cli

import (
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/AlexRogalskiy/turborepo/internal/logging"
	"github.com/AlexRogalskiy/turborepo/internal/output"
	"github.com/AlexRogalskiy/turborepo/internal/runner"
	"github.com/AlexRogalskiy/turborepo/internal/version"
)

// app is the state shared by the commands of one invocation.
type app struct {
	out       *output.Writer
	streams   Streams
	verbosity int
	logger    hclog.Logger

	// executor replaces the shell executor in tests.
	executor runner.Executor
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "turbo",
		Short: "High-performance task runner for JavaScript monorepos",
		Long: `turbo runs package.json scripts across the packages of a monorepo in
dependency order, skipping work whose inputs have not changed.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{
				Name:      "turbo",
				Verbosity: a.verbosity,
				Output:    a.streams.Err,
			})
			if err != nil {
				return usageErrorf("%v", err)
			}
			a.logger = logger
			return nil
		},
	}
	root.SetVersionTemplate("turbo {{.Version}}\n")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err: err}
	})
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newVersionCmd(a))
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the turbo version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.out.Println("%s", version.String())
			return nil
		},
	}
}

// usageArgs reports argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
