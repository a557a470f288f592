package cache

import "github.com/oklog/ulid/v2"

// Handle is an opaque identifier for one attachment of interest in a query
// key. Callers mint a Handle immediately before Start and pass the same
// value back to End. Handles are comparable and unique for the lifetime of
// any registry.
type Handle struct {
	id ulid.ULID
}

// NewHandle mints a new unique listener handle.
func NewHandle() Handle {
	return Handle{id: ulid.Make()}
}

// IsZero reports whether the handle was never minted.
func (h Handle) IsZero() bool {
	return h.id == ulid.ULID{}
}

func (h Handle) String() string {
	return h.id.String()
}
