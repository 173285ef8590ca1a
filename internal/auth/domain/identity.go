package domain

import "time"

// Identity is a principal that can hold several independent AuthMethods.
type Identity struct {
	ID          string // ULID
	Username    string
	DisplayName string
	Enabled     bool
	IsAdmin     bool // may approve methods and rotate keys
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
