package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"medq/internal/client"
	"medq/internal/review"
	"medq/internal/session"

	"github.com/spf13/cobra"
)

func adminCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Review users' submitted answers",
	}
	cmd.AddCommand(adminUsersCmd(opts), adminResponsesCmd(opts), adminExportCmd(opts))
	return cmd
}

func adminEnv(cmd *cobra.Command, opts *options) (*env, error) {
	e, err := setup(cmd.Context(), opts)
	if err != nil {
		return nil, err
	}
	if err := e.guard(session.RouteAdmin); err != nil {
		return nil, err
	}
	return e, nil
}

func adminUsersCmd(opts *options) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "List users with their completed questionnaire count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := adminEnv(cmd, opts)
			if err != nil {
				return err
			}
			rv := review.New(e.api, e.log)
			if err := rv.LoadUsers(cmd.Context()); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tCOMPLETED")
			for _, u := range rv.Filter(search) {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", u.ID, u.Username, u.CompletedQuestionnaires)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "keep usernames containing this text")
	return cmd
}

func adminResponsesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "responses <user-id>",
		Short: "Show a user's latest answers per questionnaire",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := adminEnv(cmd, opts)
			if err != nil {
				return err
			}
			rv := review.New(e.api, e.log)
			defer rv.Close()
			if err := rv.Select(cmd.Context(), userID); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			groups := rv.Groups()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No responses")
				return nil
			}
			for _, g := range groups {
				fmt.Fprintf(out, "== %s\n", g.QuestionnaireName)
				for _, p := range g.Pairs {
					fmt.Fprintf(out, "  Q: %s\n  A: %s\n", p.Question, p.Display)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func adminExportCmd(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <user-id>",
		Short: "Download a user's answers as an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := adminEnv(cmd, opts)
			if err != nil {
				return err
			}
			data, err := e.api.AdminExport(cmd.Context(), userID)
			if err != nil {
				return loadFailure("Failed to load user responses", err)
			}
			if output == "" {
				output = "user-" + strconv.FormatInt(userID, 10) + "-responses.xlsx"
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}

func loadFailure(msg string, err error) error {
	return client.NewFailure(client.LoadFailure, msg, err)
}
