package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// LogLevel returns the structured log level implied by the global flags.
func (o *RootOptions) LogLevel() string {
	if o.Verbose {
		return "debug"
	}
	return "warn"
}

// NewRootCommand creates the root command for lqctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "lqctl",
		Short:         "lqctl - livequery deployment tooling",
		Long:          "Tooling around livequery deployments, such as retrieving a deployment's function manifest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewManifestCommand(opts))

	return cmd
}
