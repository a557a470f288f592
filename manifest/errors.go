package manifest

import "errors"

var (
	// ErrNoCommand indicates Fetch was called on a Fetcher constructed
	// without an introspection command.
	ErrNoCommand = errors.New("manifest: no introspection command configured")

	// ErrInvalidManifest indicates the manifest failed validation.
	ErrInvalidManifest = errors.New("manifest: invalid manifest")
)
