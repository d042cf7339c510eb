package gate

import (
	"testing"

	"github.com/startupvista/vista-go/pkg/session"

	"github.com/stretchr/testify/assert"
)

func authedSnap(role session.Role) session.Snapshot {
	return session.Snapshot{
		State: session.StateAuthenticated,
		User:  &session.User{ID: "u1", Role: role},
	}
}

func TestProtect(t *testing.T) {
	tests := []struct {
		name     string
		snap     session.Snapshot
		roles    []session.Role
		expected Decision
	}{
		{
			name:     "unknown state is pending",
			snap:     session.Snapshot{State: session.StateUnknown},
			expected: Decision{Outcome: OutcomePending},
		},
		{
			name:     "verifying state is pending even with roles",
			snap:     session.Snapshot{State: session.StateVerifying},
			roles:    []session.Role{session.RoleInvestor},
			expected: Decision{Outcome: OutcomePending},
		},
		{
			name:     "unauthenticated goes to login",
			snap:     session.Snapshot{State: session.StateUnauthenticated},
			expected: Decision{Outcome: OutcomeRedirect, Location: LoginPath, Replace: true},
		},
		{
			name:     "unauthenticated goes to login regardless of allow-list",
			snap:     session.Snapshot{State: session.StateUnauthenticated},
			roles:    []session.Role{session.RoleInvestor},
			expected: Decision{Outcome: OutcomeRedirect, Location: LoginPath, Replace: true},
		},
		{
			name:     "role selection pending counts as unauthenticated",
			snap:     session.Snapshot{State: session.StateRoleSelectionRequired, Pending: &session.PendingFederatedUser{Name: "Ada"}},
			expected: Decision{Outcome: OutcomeRedirect, Location: LoginPath, Replace: true},
		},
		{
			name:     "authenticated with no allow-list renders",
			snap:     authedSnap(session.RoleStartup),
			expected: Decision{Outcome: OutcomeAllow},
		},
		{
			name:     "allowed role renders",
			snap:     authedSnap(session.RoleInvestor),
			roles:    []session.Role{session.RoleInvestor, session.RoleConsultant},
			expected: Decision{Outcome: OutcomeAllow},
		},
		{
			name:     "disallowed role goes to dashboard",
			snap:     authedSnap(session.RoleStartup),
			roles:    []session.Role{session.RoleInvestor},
			expected: Decision{Outcome: OutcomeRedirect, Location: DashboardPath, Replace: true},
		},
		{
			name:     "admin passes an admin-only gate",
			snap:     authedSnap(session.RoleAdmin),
			roles:    []session.Role{session.RoleAdmin},
			expected: Decision{Outcome: OutcomeAllow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Protect(tt.snap, tt.roles...))
		})
	}
}

func TestPublicOnly(t *testing.T) {
	tests := []struct {
		name     string
		snap     session.Snapshot
		expected Decision
	}{
		{
			name:     "verifying is pending",
			snap:     session.Snapshot{State: session.StateVerifying},
			expected: Decision{Outcome: OutcomePending},
		},
		{
			name:     "unauthenticated renders the public view",
			snap:     session.Snapshot{State: session.StateUnauthenticated},
			expected: Decision{Outcome: OutcomeAllow},
		},
		{
			name:     "authenticated goes to dashboard",
			snap:     authedSnap(session.RoleInvestor),
			expected: Decision{Outcome: OutcomeRedirect, Location: DashboardPath, Replace: true},
		},
		{
			name:     "role selection still shows public views",
			snap:     session.Snapshot{State: session.StateRoleSelectionRequired},
			expected: Decision{Outcome: OutcomeAllow},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PublicOnly(tt.snap))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "pending", OutcomePending.String())
	assert.Equal(t, "allow", OutcomeAllow.String())
	assert.Equal(t, "redirect", OutcomeRedirect.String())
	assert.Equal(t, "invalid", Outcome(42).String())
}
