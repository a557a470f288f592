package cache

import "errors"

// Sentinel errors for registry construction and use.
var (
	// ErrNilSubscriber indicates a nil transport subscriber was provided.
	ErrNilSubscriber = errors.New("cache: subscriber is nil")

	// ErrNilNotify indicates Start was called without a notify callback.
	ErrNilNotify = errors.New("cache: notify callback is nil")

	// ErrHandleAttached indicates Start was called with a handle that is
	// already attached to a key in this registry.
	ErrHandleAttached = errors.New("cache: handle is already attached")
)
