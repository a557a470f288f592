// Package manifest models the static function manifest of a deployment and
// retrieves it, either from a local file or by running the deployment
// introspection command and capturing its output.
//
// The manifest is pure data: it lists the server functions a client may
// reference, so tooling can generate or validate query identities. It
// carries no subscription logic.
package manifest
