package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"medq/internal/answer"
	"medq/internal/questionnaire"
	"medq/internal/respond"
	"medq/internal/session"

	"github.com/spf13/cobra"
)

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List questionnaires and whether you completed them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := e.guard(session.RouteQuestionnaires); err != nil {
				return err
			}
			items, err := e.api.Questionnaires(cmd.Context())
			if err != nil {
				return loadFailure("Failed to load questionnaires", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tQUESTIONS\tSTATUS")
			for _, it := range items {
				status := "pending"
				if it.Completed {
					status = "completed"
				}
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", it.ID, it.Name, it.QuestionCount, status)
			}
			return tw.Flush()
		},
	}
}

func showCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <questionnaire-id>",
		Short: "Show a questionnaire with your current answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := e.guard(session.RouteQuestionnaires); err != nil {
				return err
			}
			flow := respond.New(e.api, id, e.log)
			if err := flow.Load(cmd.Context()); err != nil {
				return err
			}
			printFlow(cmd.OutOrStdout(), flow)
			return nil
		},
	}
}

func answerCmd(opts *options) *cobra.Command {
	var (
		selects   []string
		unselects []string
		texts     []string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "answer <questionnaire-id>",
		Short: "Edit answers and submit them",
		Long: `Loads your latest answers, applies the edits and submits.

  medq answer 1 --select 1="Improve blood pressure" --select 1="Longevity benefits" --text 2="nothing else"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := setup(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := e.guard(session.RouteQuestionnaires); err != nil {
				return err
			}

			flow := respond.New(e.api, id, e.log)
			if err := flow.Load(cmd.Context()); err != nil {
				return err
			}
			if err := applyEdits(flow, selects, unselects, texts); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printFlow(out, flow)
			if dryRun {
				return flow.Validate()
			}
			if _, err := flow.Submit(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Responses submitted")
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&selects, "select", nil, "check an option: <question-id>=<option>")
	cmd.Flags().StringArrayVar(&unselects, "unselect", nil, "uncheck an option: <question-id>=<option>")
	cmd.Flags().StringArrayVar(&texts, "text", nil, "set a free-text answer: <question-id>=<text>")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without submitting")
	return cmd
}

func applyEdits(flow *respond.Flow, selects, unselects, texts []string) error {
	for _, kv := range texts {
		qid, v, err := splitEdit(kv)
		if err != nil {
			return err
		}
		if err := flow.SetText(qid, v); err != nil {
			return err
		}
	}
	for _, kv := range selects {
		qid, v, err := splitEdit(kv)
		if err != nil {
			return err
		}
		if err := flow.Toggle(qid, v, true); err != nil {
			return err
		}
	}
	for _, kv := range unselects {
		qid, v, err := splitEdit(kv)
		if err != nil {
			return err
		}
		if err := flow.Toggle(qid, v, false); err != nil {
			return err
		}
	}
	return nil
}

func printFlow(w io.Writer, flow *respond.Flow) {
	if qn, ok := flow.Questionnaire(); ok {
		fmt.Fprintf(w, "%s (%d)  progress %.0f%%\n\n", qn.Name, qn.ID, flow.Progress()*100)
	}
	for _, q := range flow.Questions() {
		fmt.Fprintf(w, "[%d] %s\n", q.ID, q.Text)
		v, _ := flow.Answer(q.ID)
		printAnswer(w, q.Question, v)
		fmt.Fprintln(w)
	}
}

func printAnswer(w io.Writer, q questionnaire.Question, v answer.Value) {
	if q.Type == answer.MultiSelect {
		for _, o := range q.Options {
			mark := " "
			if v.Contains(o) {
				mark = "x"
			}
			fmt.Fprintf(w, "    [%s] %s\n", mark, o)
		}
		return
	}
	text := v.String()
	if strings.TrimSpace(text) == "" {
		text = "-"
	}
	fmt.Fprintf(w, "    %s\n", text)
}

func splitEdit(kv string) (int64, string, error) {
	k, v, ok := strings.Cut(kv, "=")
	if !ok {
		return 0, "", fmt.Errorf("edit %q: want <question-id>=<value>", kv)
	}
	id, err := parseID(k)
	if err != nil {
		return 0, "", err
	}
	return id, v, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
