// Package gate decides render vs redirect for a requested view given the
// current session snapshot and an optional role allow-list.
package gate

import (
	"github.com/startupvista/vista-go/pkg/session"
)

// Default navigation targets.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Outcome is the gate's verdict for a view request.
type Outcome int

const (
	// OutcomePending means session state has not settled; render a
	// neutral loading indicator and make no redirect decision yet.
	OutcomePending Outcome = iota
	// OutcomeAllow renders the requested view.
	OutcomeAllow
	// OutcomeRedirect navigates elsewhere instead of rendering.
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAllow:
		return "allow"
	case OutcomeRedirect:
		return "redirect"
	}
	return "invalid"
}

// Decision is the gate's full answer. Replace tells a navigating front end
// to replace the current history entry rather than push, so back-navigation
// does not loop through the redirect.
type Decision struct {
	Outcome  Outcome
	Location string
	Replace  bool
}

// Protect evaluates the decision table for a protected view, in order:
// unsettled state renders a loader, a missing user redirects to login, a
// role outside the allow-list redirects to the authenticated landing view,
// anything else renders. An empty allow-list admits every authenticated
// role.
func Protect(snap session.Snapshot, allowedRoles ...session.Role) Decision {
	if !snap.State.Settled() {
		return Decision{Outcome: OutcomePending}
	}
	if !snap.IsAuthenticated() {
		return Decision{Outcome: OutcomeRedirect, Location: LoginPath, Replace: true}
	}
	if len(allowedRoles) > 0 && !roleAllowed(snap.User.Role, allowedRoles) {
		return Decision{Outcome: OutcomeRedirect, Location: DashboardPath, Replace: true}
	}
	return Decision{Outcome: OutcomeAllow}
}

// PublicOnly evaluates the complementary gate for login/register views: an
// already-authenticated user is sent to the landing view, with the same
// neutrality rule while state is unsettled.
func PublicOnly(snap session.Snapshot) Decision {
	if !snap.State.Settled() {
		return Decision{Outcome: OutcomePending}
	}
	if snap.IsAuthenticated() {
		return Decision{Outcome: OutcomeRedirect, Location: DashboardPath, Replace: true}
	}
	return Decision{Outcome: OutcomeAllow}
}

func roleAllowed(role session.Role, allowed []session.Role) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}
