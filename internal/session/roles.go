// Package session manages client connections: authentication by device id,
// role-gated mutation of the live state, and fan-out of state and roster
// broadcasts to every open connection.
package session

// Role is a client's privilege tier. Roles form a closed, ordered set;
// permission checks are rank comparisons, not type switches.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleController Role = "controller"
	RoleModerator  Role = "moderator"
	RoleEditor     Role = "editor"
)

var roleRank = map[Role]int{
	RoleViewer:     0,
	RoleController: 1,
	RoleModerator:  2,
	RoleEditor:     3,
}

// ParseRole maps a stored role string onto the enum, failing closed to viewer
// for anything unrecognized.
func ParseRole(s string) Role {
	r := Role(s)
	if _, ok := roleRank[r]; !ok {
		return RoleViewer
	}
	return r
}

// Valid reports whether r is one of the four defined roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// CanEdit reports whether r may mutate the live state.
func (r Role) CanEdit() bool {
	return roleRank[r] >= roleRank[RoleController]
}

// CanManageClients reports whether r may manage other clients at all.
// Moderators get a carve-out for user management; whether a particular target
// is in reach is decided by CanManage.
func (r Role) CanManageClients() bool {
	return roleRank[r] >= roleRank[RoleModerator]
}

// CanManage reports whether r may change the given target role. Moderators
// manage viewers and controllers only; editors manage everyone.
func (r Role) CanManage(target Role) bool {
	if r == RoleEditor {
		return true
	}
	if r == RoleModerator {
		return roleRank[target] < roleRank[RoleModerator]
	}
	return false
}

// CanAccessSettings reports whether r may reach settings-level operations
// (configuration replace/reset/import, layout selection).
func (r Role) CanAccessSettings() bool {
	return r == RoleEditor
}
