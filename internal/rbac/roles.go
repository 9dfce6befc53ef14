package rbac

// Role names. Keep these stable; they are part of the token contract.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleAgent   = "agent"
	RoleAnalyst = "analyst"
)

// IsSupervisor reports whether role may act on behalf of other agents in its workspace.
func IsSupervisor(role string) bool { return role == RoleOwner || role == RoleAdmin }
