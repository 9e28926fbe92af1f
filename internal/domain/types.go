package domain

// Role values carried by the identity provider token.
const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
	RoleAdmin     = "admin"
	RoleSystem    = "system"
)

// Actor is the authenticated caller of a ledger operation.
type Actor struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Privileged reports whether the actor bypasses ownership checks.
func (a Actor) Privileged() bool {
	return a.Role == RoleSystem || a.Role == RoleAdmin
}
