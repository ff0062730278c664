package user

import "github.com/google/uuid"

// Role controls what operations an identity may perform. Identities are
// issued externally; the engine only consumes (id, role) pairs.
type Role string

const (
	RoleGuest  Role = "guest"
	RoleBidder Role = "bidder"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// CanBid reports whether the role may place bids.
func (r Role) CanBid() bool {
	return r == RoleBidder || r == RoleStaff || r == RoleAdmin
}

// IsStaff reports whether the role may run admin operations.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}
