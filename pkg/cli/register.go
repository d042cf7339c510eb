package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/startupvista/vista-go/pkg/api"
	"github.com/startupvista/vista-go/pkg/session"
)

func newRegisterCommand() *Command {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (prompted when omitted)")
	role := fs.String("role", "", "Account role: startup, investor or consultant")

	cmd := &Command{
		Name:        "register",
		Description: "Create an account with email and password",
		Flags:       fs,
	}
	cmd.Run = func(args []string) error {
		if err := fs.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()

		parsedRole, err := session.ParseRole(*role)
		if err != nil {
			return fmt.Errorf("-role must be one of startup, investor, consultant")
		}
		if !parsedRole.Selectable() {
			return fmt.Errorf("role %q cannot be self-assigned", parsedRole)
		}

		env, err := newEnvironment(ctx, false)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		if *password == "" {
			if *password, err = promptLine("Password: "); err != nil {
				return err
			}
		}

		user, err := env.service.Register(ctx, api.RegisterRequest{
			Name:     *name,
			Email:    *email,
			Password: *password,
			Role:     parsedRole,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Registered and signed in as %s (%s, %s)\n", user.Name, user.Email, user.Role)
		return nil
	}
	return cmd
}

func newSetRoleCommand() *Command {
	fs := flag.NewFlagSet("set-role", flag.ExitOnError)
	role := fs.String("role", "", "Role to assign: startup, investor or consultant")

	cmd := &Command{
		Name:        "set-role",
		Description: "Set the role of the signed-in user (only while unset)",
		Flags:       fs,
	}
	cmd.Run = func(args []string) error {
		if err := fs.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()

		parsedRole, err := session.ParseRole(*role)
		if err != nil {
			return fmt.Errorf("-role must be one of startup, investor, consultant")
		}

		env, err := newEnvironment(ctx, false)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		user, err := env.service.UpdateRole(ctx, parsedRole)
		if err != nil {
			return err
		}
		fmt.Printf("Role updated: %s is now a %s\n", user.Email, user.Role)
		return nil
	}
	return cmd
}
