package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(a *app) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Authenticate and store the session tokens",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initSession(); err != nil {
				return err
			}

			reader := bufio.NewReader(a.stdin)

			var username string
			if len(args) == 1 {
				username = args[0]
			} else {
				fmt.Fprint(a.stdout, "Username: ")
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}

			password, err := readPassword(a, reader, passwordStdin)
			if err != nil {
				return err
			}

			if err := a.mgr.Login(cmd.Context(), username, password); err != nil {
				a.notice()
				return fmt.Errorf("login failed")
			}

			state := a.mgr.State()
			fmt.Fprintf(a.stdout, "Logged in as %s.\n", state.User.Username)
			if state.Subscription != nil {
				fmt.Fprintf(a.stdout, "Current subscription: %s (%s), ends %s.\n",
					state.Subscription.Plan.Name, state.Subscription.Status, state.Subscription.EndDate)
			} else {
				fmt.Fprintln(a.stdout, "No subscription yet. Run: subctl plans")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	return cmd
}

// readPassword prompts on a terminal without echo; otherwise it reads a
// single line from stdin.
func readPassword(a *app, reader *bufio.Reader, forceStdin bool) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && !forceStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stdout, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stdout)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session and persisted tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initSession(); err != nil {
				return err
			}
			if err := a.mgr.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd); err != nil {
				return err
			}
			user := a.mgr.State().User
			fmt.Fprintf(a.stdout, "%s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
}
