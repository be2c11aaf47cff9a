package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/concord-chat/teamchat/internal/apperr"
)

var (
	loginEmail    string
	loginPassword string
	loginUsername string
	loginSignup   bool
)

// loginCmd signs in (or registers) and stores the session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Sign in with email and password and store the session for later runs.

Examples:
  teamchat login --email ann@example.com
  teamchat login --signup --username ann --email ann@example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginPassword == "" {
			pw, err := prompt(cmd, "Password: ")
			if err != nil {
				return err
			}
			loginPassword = pw
		}

		var err error
		if loginSignup {
			err = rt.engine.Signup(cmd.Context(), loginUsername, loginEmail, loginPassword)
		} else {
			err = rt.engine.Login(cmd.Context(), loginEmail, loginPassword)
		}
		if err != nil {
			return fmt.Errorf("%s", apperr.Message(err))
		}

		u := rt.engine.CurrentUser()
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%d channels)\n", u.Username, len(rt.engine.Channels()))
		return nil
	},
}

// logoutCmd clears the stored session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := rt.engine.Start(cmd.Context()); err != nil {
			return err
		}
		rt.engine.Logout()
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "account password (prompted when empty)")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "username for --signup")
	loginCmd.Flags().BoolVar(&loginSignup, "signup", false, "create the account first")
	_ = loginCmd.MarkFlagRequired("email")
}

func prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
