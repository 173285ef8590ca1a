package domain

import "time"

// Ceremony names the two-phase exchange a Challenge belongs to.
type Ceremony string

const (
	CeremonyRegistration   Ceremony = "registration"
	CeremonyAuthentication Ceremony = "authentication"
)

// Challenge is a single-use random value binding one ceremony attempt.
type Challenge struct {
	Value      string // base64url (raw) encoding of 32 random bytes
	Ceremony   Ceremony
	Scope      string // relying-party id
	IdentityID string // bound identity, empty for discoverable flows

	// Provisional identity details carried from registration begin to finish.
	// Set only when the identity does not exist yet.
	PendingUsername    string
	PendingDisplayName string

	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// IsExpired reports whether the challenge TTL has elapsed.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsProvisional reports whether finishing the ceremony must create the identity.
func (c *Challenge) IsProvisional() bool {
	return c.PendingUsername != ""
}
