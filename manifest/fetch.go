package manifest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/livequery/observe"
)

// Fetcher retrieves manifests. Concurrent Fetch calls for the same
// deployment are deduplicated; all callers share one command invocation.
type Fetcher struct {
	command []string
	logger  observe.Logger
	tracer  observe.Tracer
	group   singleflight.Group
}

// FetcherOptions carries optional Fetcher collaborators.
type FetcherOptions struct {
	Logger observe.Logger
	Tracer observe.Tracer
}

// NewFetcher creates a Fetcher. command is the deployment introspection
// command and its leading arguments; the deployment name is appended per
// Fetch. A nil command is allowed for file-only use.
func NewFetcher(command []string, opts FetcherOptions) *Fetcher {
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = observe.NopTracer()
	}
	return &Fetcher{
		command: command,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
	}
}

// Load reads and parses a manifest from a local file.
func (f *Fetcher) Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(data)
}

// Fetch runs the introspection command for the deployment, captures its
// standard output into a temporary file, reads it back, and parses it. The
// temporary file is removed regardless of success or failure. Concurrent
// fetches for the same deployment share one invocation.
func (f *Fetcher) Fetch(ctx context.Context, deployment string) (*Manifest, error) {
	if len(f.command) == 0 {
		return nil, ErrNoCommand
	}

	v, err, _ := f.group.Do(deployment, func() (any, error) {
		return f.fetchOnce(ctx, deployment)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, deployment string) (*Manifest, error) {
	ctx, span := f.tracer.StartSpan(ctx, "manifest.fetch",
		attribute.String("deployment.name", deployment),
	)
	m, err := f.runIntrospection(ctx, deployment)
	f.tracer.EndSpan(span, err)
	return m, err
}

func (f *Fetcher) runIntrospection(ctx context.Context, deployment string) (*Manifest, error) {
	tmp, err := os.CreateTemp("", "livequery-manifest-*.json")
	if err != nil {
		return nil, fmt.Errorf("manifest: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	args := make([]string, 0, len(f.command))
	args = append(args, f.command[1:]...)
	args = append(args, deployment)
	cmd := exec.CommandContext(ctx, f.command[0], args...)
	cmd.Stdout = tmp
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	closeErr := tmp.Close()
	if runErr != nil {
		return nil, fmt.Errorf("manifest: introspection command failed: %w (stderr: %s)", runErr, stderr.String())
	}
	if closeErr != nil {
		return nil, fmt.Errorf("manifest: flush temp file: %w", closeErr)
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("manifest: read temp file: %w", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}

	f.logger.Info(ctx, "manifest fetched",
		observe.String("deployment.name", deployment),
		observe.Int("functions", len(m.Functions)),
	)
	return m, nil
}
