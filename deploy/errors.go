package deploy

import "errors"

var (
	// ErrMalformedKey indicates the access key is not a parseable JWT.
	ErrMalformedKey = errors.New("deploy: malformed access key")

	// ErrMissingDeployment indicates the key carries no deployment claim.
	ErrMissingDeployment = errors.New("deploy: access key missing deployment claim")

	// ErrKeyExpired indicates the access key's expiry has passed.
	ErrKeyExpired = errors.New("deploy: access key expired")
)
