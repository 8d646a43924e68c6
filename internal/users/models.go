package users

import "time"

// Role is the portal-wide membership role. Fulfillment promotes basic users
// to member; nothing demotes them here.
type Role string

const (
	RoleBasic  Role = "Basic"
	RoleMember Role = "Member"
)

// Profile is the slice of the user profile the payment pipeline needs.
// Profile CRUD lives in the portal frontend service.
type Profile struct {
	UserID    string
	Name      string
	Email     string
	Role      Role
	UpdatedAt time.Time
}

// IsMember reports whether the profile already holds membership.
func (p Profile) IsMember() bool {
	return p.Role == RoleMember
}
