package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/startupvista/vista-go/pkg/session"
)

// roleDescriptions mirrors the role-selection screen of the web client.
var roleDescriptions = map[session.Role]string{
	session.RoleStartup:    "Looking for funding and growth opportunities",
	session.RoleInvestor:   "Invest in promising startups",
	session.RoleConsultant: "Help startups grow and connect with investors",
}

func newSSOLoginCommand() *Command {
	cmd := &Command{
		Name:        "sso-login",
		Description: "Sign in through the federated identity provider",
		Flags:       flag.NewFlagSet("sso-login", flag.ExitOnError),
	}
	cmd.Run = func(args []string) error {
		ctx := context.Background()

		env, err := newEnvironment(ctx, true)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		fmt.Println("Opening your browser to sign in...")
		snap, err := env.service.SignInWithFederatedProvider(ctx)
		if err != nil {
			return err
		}

		if snap.State == session.StateRoleSelectionRequired {
			return completeRoleSelection(ctx, env, snap.Pending)
		}

		fmt.Printf("Signed in as %s (%s)\n", snap.User.Name, snap.User.Email)
		return nil
	}
	return cmd
}

// completeRoleSelection drives the first-time-user branch: the identity is
// valid but has no role yet, so the user picks one before a session exists.
func completeRoleSelection(ctx context.Context, env *environment, pending *session.PendingFederatedUser) error {
	fmt.Printf("\nWelcome, %s! Choose your role in the StartupVista ecosystem:\n\n", pending.Name)
	roles := session.SelectableRoles()
	for i, role := range roles {
		fmt.Printf("  %d) %-10s %s\n", i+1, role, roleDescriptions[role])
	}
	fmt.Println()

	for {
		choice, err := promptLine("Role [1-3]: ")
		if err != nil {
			return err
		}

		var role session.Role
		switch choice {
		case "1":
			role = roles[0]
		case "2":
			role = roles[1]
		case "3":
			role = roles[2]
		default:
			if parsed, perr := session.ParseRole(choice); perr == nil && parsed.Selectable() {
				role = parsed
			} else {
				fmt.Println("Please pick 1, 2 or 3.")
				continue
			}
		}

		user, err := env.service.CompleteRegistration(ctx, role)
		if err != nil {
			var authErr *session.AuthError
			if errors.As(err, &authErr) && authErr.Recoverable {
				fmt.Printf("%s\n", authErr.Message)
				env.service.ClearError()
				continue
			}
			return err
		}

		fmt.Printf("Registered and signed in as %s (%s)\n", user.Email, user.Role)
		return nil
	}
}
