package cli

import (
	"context"
	"flag"
	"fmt"
)

func newLoginCommand() *Command {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (prompted when omitted)")

	cmd := &Command{
		Name:        "login",
		Description: "Sign in with email and password",
		Flags:       fs,
	}
	cmd.Run = func(args []string) error {
		if err := fs.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()

		env, err := newEnvironment(ctx, false)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		if *email == "" {
			if *email, err = promptLine("Email: "); err != nil {
				return err
			}
		}
		if *password == "" {
			if *password, err = promptLine("Password: "); err != nil {
				return err
			}
		}

		user, err := env.service.Login(ctx, *email, *password)
		if err != nil {
			return err
		}

		fmt.Printf("Signed in as %s (%s)\n", user.Name, user.Email)
		if user.Role != "" {
			fmt.Printf("Role: %s\n", user.Role)
		}
		return nil
	}
	return cmd
}

func newLogoutCommand() *Command {
	cmd := &Command{
		Name:        "logout",
		Description: "Sign out and clear stored tokens",
		Flags:       flag.NewFlagSet("logout", flag.ExitOnError),
	}
	cmd.Run = func(args []string) error {
		ctx := context.Background()

		env, err := newEnvironment(ctx, false)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		if err := env.service.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	}
	return cmd
}

func newWhoamiCommand() *Command {
	cmd := &Command{
		Name:        "whoami",
		Description: "Show the current session",
		Flags:       flag.NewFlagSet("whoami", flag.ExitOnError),
	}
	cmd.Run = func(args []string) error {
		ctx := context.Background()

		env, err := newEnvironment(ctx, false)
		if err != nil {
			return err
		}
		if err := env.start(ctx); err != nil {
			return err
		}
		defer env.service.Stop()

		snap := env.service.Snapshot()
		if !snap.IsAuthenticated() {
			fmt.Println("Not signed in.")
			return nil
		}

		user := snap.User
		fmt.Printf("ID:       %s\n", user.ID)
		fmt.Printf("Name:     %s\n", user.Name)
		fmt.Printf("Email:    %s\n", user.Email)
		fmt.Printf("Role:     %s\n", user.Role)
		fmt.Printf("Verified: %t\n", user.IsVerified)
		return nil
	}
	return cmd
}
