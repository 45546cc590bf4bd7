package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"deptportal/portal/internal/login"
	"deptportal/portal/internal/model"
)

func loginCmd() *cobra.Command {
	var loginID, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the portal API",
		Long: `Log in with a login ID and password.

The session cookies are kept in PORTAL_STATE_DIR (0600) so that later
whoami and logout runs act on this session. The returned user is mirrored
to Redis when REDIS_ADDR is set, otherwise to a file in the same directory.
The password is read from stdin when --password is not given.

Examples:
  portal login --id 83000001
  echo secret | portal login --id 70000001`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if role, ok := login.RoleHint(loginID); ok {
				fmt.Fprintf(out, "Logging in as %s\n", role)
			}
			if password == "" {
				password, err = readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			result, err := a.flow.Submit(ctx, login.Form{LoginID: loginID, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Home: %s\n", result.Redirect)
			return printUser(out, result.User)
		},
	}

	cmd.Flags().StringVar(&loginID, "id", "", "Login ID")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty)")

	return cmd
}

func whoamiCmd() *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the current user",
		Long: `Ask the portal API who owns the saved session, refreshing it when the
access token has expired, and print the full profile.

With --cached, print the user mirrored by the last login instead. The
mirror is not authoritative and may be stale.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if cached {
				user, ok, err := a.cache.Load(ctx)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Not logged in")
					return nil
				}
				fmt.Fprintln(out, "(cached, may be stale)")
				return printUser(out, user)
			}

			a.store.Revalidate(ctx)
			user := a.store.Snapshot().User
			if user == nil {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			return printUser(out, user)
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Print the mirrored user without asking the API")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the saved session",
		Long: `Revoke the saved session on the portal API, then delete the saved
cookies and the mirrored user. Local state is cleared even when the API
cannot be reached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			a.flow.Logout(ctx)
			a.forgetSession()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func printUser(out io.Writer, user model.User) error {
	raw, err := model.EncodeUser(user)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(raw))
	return err
}

func readLine(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
