package session

// State is the client-held authentication state machine.
//
// Start-up verification walks Unknown -> Verifying -> {Authenticated,
// Unauthenticated}. A federated sign-in that reveals a new identity parks
// the machine in RoleSelectionRequired until the user picks a role.
type State int

const (
	StateUnknown State = iota
	StateVerifying
	StateAuthenticated
	StateUnauthenticated
	StateRoleSelectionRequired
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateRoleSelectionRequired:
		return "role_selection_required"
	}
	return "invalid"
}

// Settled reports whether start-up verification has produced a decision.
// Route gating must stay neutral until the state settles.
func (s State) Settled() bool {
	return s != StateUnknown && s != StateVerifying
}

// Snapshot is a point-in-time copy of the auth state handed to views and
// gates.
type Snapshot struct {
	State   State
	User    *User
	Pending *PendingFederatedUser
	Err     *AuthError
}

// IsAuthenticated reports whether a server-confirmed user is present.
func (s Snapshot) IsAuthenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}
