// Package roles defines the closed set of journal collaborator roles and
// the permission checks derived from them.
package roles

type Role string

const (
	RoleViewer   Role = "viewer"
	RoleReporter Role = "reporter"
	RoleEditor   Role = "editor"
	RoleAdmin    Role = "admin"

	// RoleRemove is a transient batch-input signal requesting removal of a
	// collaborator. It is never stored on a journal.
	RoleRemove Role = "to_remove"
)

// Parse accepts the five valid batch-input role strings.
func Parse(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleViewer, RoleReporter, RoleEditor, RoleAdmin, RoleRemove:
		return Role(raw), true
	default:
		return "", false
	}
}

// Storable reports whether the role may be written to a journal's access
// or pending-access maps.
func (r Role) Storable() bool {
	switch r {
	case RoleViewer, RoleReporter, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanShare reports whether the role may modify a journal's collaborator set.
func CanShare(role Role) bool {
	switch role {
	case RoleAdmin:
		return true
	default:
		return false
	}
}

// CanAddEntry reports whether the role may record entries on a journal.
func CanAddEntry(role Role) bool {
	switch role {
	case RoleReporter, RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanEditEntries reports whether the role may remove entries.
func CanEditEntries(role Role) bool {
	switch role {
	case RoleEditor, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanView reports whether the role grants read access at all.
func CanView(role Role) bool {
	return role.Storable()
}
