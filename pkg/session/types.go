package session

import "fmt"

// Role is an enumerated user category gating feature access.
type Role string

const (
	RoleStartup    Role = "startup"    // Raising funding
	RoleInvestor   Role = "investor"   // Investing in startups
	RoleConsultant Role = "consultant" // Advising startups, verifying profiles
	RoleAdmin      Role = "admin"      // Platform administration
)

// SelectableRoles returns the roles a new user may choose during sign-up.
// Admin accounts are provisioned server-side and are never self-selectable.
func SelectableRoles() []Role {
	return []Role{RoleStartup, RoleInvestor, RoleConsultant}
}

// ParseRole validates a role string against the enumerated set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStartup, RoleInvestor, RoleConsultant, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role: %q", s)
}

// Valid reports whether the role is a member of the enumerated set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Selectable reports whether a new user may choose this role at sign-up.
func (r Role) Selectable() bool {
	for _, s := range SelectableRoles() {
		if r == s {
			return true
		}
	}
	return false
}

// Provider values for User.Provider.
const (
	ProviderPassword  = "password"
	ProviderFederated = "federated"
)

// User is the server-confirmed identity attached to a session.
// Role starts unset for first-time federated users and is set exactly once
// by explicit choice; it is otherwise immutable after creation.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       Role   `json:"role,omitempty"`
	IsVerified bool   `json:"isVerified"`
	Provider   string `json:"provider,omitempty"`
	Picture    string `json:"picture,omitempty"`
}

// Session bundles the bearer tokens with the server-confirmed user.
// Both tokens are opaque strings with server-defined expiry; they are never
// parsed client-side. A Session exists iff the user is authenticated.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// PendingFederatedUser holds provider profile claims between a federated
// sign-in that revealed a new identity and the completion of role selection.
// It is destroyed on role-selection success or on sign-out.
type PendingFederatedUser struct {
	Name        string
	Email       string
	Picture     string
	ProviderUID string
}

// AuthError is a recoverable-or-not authentication failure surfaced to the
// UI layer. It is cleared explicitly by the consumer, never auto-expired.
type AuthError struct {
	Message     string
	Recoverable bool
	Err         error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps err with a user-facing message. A nil err is allowed
// for validation failures that never reached the network.
func NewAuthError(message string, recoverable bool, err error) *AuthError {
	return &AuthError{Message: message, Recoverable: recoverable, Err: err}
}
