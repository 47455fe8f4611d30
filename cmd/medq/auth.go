package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"medq/internal/session"

	"github.com/spf13/cobra"
)

func loginCmd(opts *options) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if password == "" {
				password = os.Getenv("MEDQ_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			route, err := e.session.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			u := e.session.User()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", u.Username, u.Role)
			if route == session.RouteAdmin {
				fmt.Fprintln(cmd.OutOrStdout(), "Next: medq admin users")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Next: medq list")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or MEDQ_PASSWORD, or prompt)")
	return cmd
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			e.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func whoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := e.guard(session.RouteQuestionnaires); err != nil {
				return err
			}
			u := e.session.User()
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, %s)\n", u.Username, u.ID, u.Role)
			return nil
		},
	}
}
