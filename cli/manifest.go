package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/livequery/deploy"
	"github.com/jonwraymond/livequery/manifest"
	"github.com/jonwraymond/livequery/observe"
)

// deployKeyEnv is consulted when --deploy-key is not given.
const deployKeyEnv = "LIVEQUERY_DEPLOY_KEY"

// ManifestOptions holds flags for the manifest command.
type ManifestOptions struct {
	*RootOptions
	Path      string
	Command   string
	DeployKey string
	Out       string
}

// NewManifestCommand creates the manifest command.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ManifestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Retrieve a deployment's function manifest and write it to a file",
		Long: `Retrieve a deployment's function manifest and write it to a file.

With --path the manifest is read from a local file. Otherwise the deployment
introspection command given by --command is run with the deployment name
(taken from the access key) appended, and its output is captured.

Example:
  lqctl manifest --path functions.json --out functions.json
  lqctl manifest --command "npx deployment-introspect" --deploy-key "$KEY" --out functions.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runManifest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Path, "path", "", "read the manifest from a local file instead of fetching")
	cmd.Flags().StringVar(&opts.Command, "command", "", "deployment introspection command")
	cmd.Flags().StringVar(&opts.DeployKey, "deploy-key", "", "deployment access key (JWT); defaults to $"+deployKeyEnv)
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "functions.json", "output file")

	return cmd
}

func runManifest(cmd *cobra.Command, opts *ManifestOptions) error {
	logger := observe.NewLoggerWithWriter(opts.LogLevel(), cmd.ErrOrStderr())

	m, err := retrieveManifest(cmd, opts, logger)
	if err != nil {
		return err
	}

	data, err := m.Encode()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", opts.Out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d functions to %s\n", len(m.Functions), opts.Out)
	return nil
}

func retrieveManifest(cmd *cobra.Command, opts *ManifestOptions, logger observe.Logger) (*manifest.Manifest, error) {
	if opts.Path != "" {
		fetcher := manifest.NewFetcher(nil, manifest.FetcherOptions{Logger: logger})
		return fetcher.Load(opts.Path)
	}

	if opts.Command == "" {
		return nil, errors.New("either --path or --command is required")
	}

	key := opts.DeployKey
	if key == "" {
		key = os.Getenv(deployKeyEnv)
	}
	if key == "" {
		return nil, errors.New("a deploy key is required to fetch: set --deploy-key or $" + deployKeyEnv)
	}

	dep, err := deploy.CheckAccessKey(key, time.Now())
	if err != nil {
		return nil, err
	}
	logger.Debug(cmd.Context(), "fetching manifest",
		observe.String("deployment.name", dep.Name),
	)

	fetcher := manifest.NewFetcher(strings.Fields(opts.Command), manifest.FetcherOptions{Logger: logger})
	return fetcher.Fetch(cmd.Context(), dep.Name)
}
