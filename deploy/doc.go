// Package deploy handles deployment access keys.
//
// An access key is a JWT minted by the deployment platform. The client does
// not verify it (the deployment does); it only reads the claims to learn
// which deployment the key targets and to screen out expired keys before
// dialing.
package deploy
