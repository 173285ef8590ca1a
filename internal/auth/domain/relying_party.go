package domain

import "slices"

// RelyingParty is a logical service boundary credentials are scoped to.
type RelyingParty struct {
	ID      string   // effective domain, e.g. "auth.example.com"
	Name    string   // human readable
	Origins []string // allowed client origins, e.g. "https://auth.example.com"
}

// AllowsOrigin reports whether origin is one of the configured origins.
func (rp RelyingParty) AllowsOrigin(origin string) bool {
	return slices.Contains(rp.Origins, origin)
}
