package query

import "errors"

// ErrUnsupportedValue indicates an argument value outside the supported
// JSON-like domain. It is never returned to callers of Keyer.Key; keyers
// report such identities as having no key.
var ErrUnsupportedValue = errors.New("query: unsupported argument value")
