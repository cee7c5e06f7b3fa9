package domain

import (
	"slices"
	"time"
)

// Factor is an authentication factor the session was established with.
type Factor string

const (
	FactorPassword    Factor = "password"
	FactorMFA         Factor = "mfa"
	FactorCertificate Factor = "certificate"
)

// Claims is the validated identity of a caller. Credentials are verified by the
// authentication layer in front of the vault; only the resulting claim set reaches
// the access control engine.
type Claims struct {
	Subject   string
	Factors   []Factor
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasFactor reports whether the session was established with f.
func (c *Claims) HasFactor(f Factor) bool {
	return slices.Contains(c.Factors, f)
}

// Expired reports whether the session is outside its validity period at now.
// A zero ExpiresAt never expires.
func (c *Claims) Expired(now time.Time) bool {
	if !c.IssuedAt.IsZero() && now.Before(c.IssuedAt) {
		return true
	}
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
