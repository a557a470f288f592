package deploy

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Deployment identifies the deployment an access key targets.
type Deployment struct {
	// Name is the deployment identifier, from the "deployment" claim.
	Name string

	// URL is the deployment's sync endpoint, from the "url" claim.
	// May be empty when the key predates URL claims.
	URL string

	// ExpiresAt is the key expiry. Zero when the key never expires.
	ExpiresAt time.Time
}

// Expired reports whether the key expired before now. Keys without an
// expiry never expire.
func (d *Deployment) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && d.ExpiresAt.Before(now)
}

// ParseAccessKey reads the deployment claims out of an access key without
// verifying its signature. Verification belongs to the deployment; the
// client only needs routing and expiry information.
func ParseAccessKey(key string) (*Deployment, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(key, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedKey
	}

	name, _ := claims["deployment"].(string)
	if name == "" {
		return nil, ErrMissingDeployment
	}

	d := &Deployment{Name: name}
	if url, ok := claims["url"].(string); ok {
		d.URL = url
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if exp != nil {
		d.ExpiresAt = exp.Time
	}

	return d, nil
}

// CheckAccessKey parses the key and rejects it when expired.
func CheckAccessKey(key string, now time.Time) (*Deployment, error) {
	d, err := ParseAccessKey(key)
	if err != nil {
		return nil, err
	}
	if d.Expired(now) {
		return nil, fmt.Errorf("%w: deployment %q, expired %s", ErrKeyExpired, d.Name, d.ExpiresAt.Format(time.RFC3339))
	}
	return d, nil
}
