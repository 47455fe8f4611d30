// Command medq answers questionnaires and reviews submissions from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"medq/internal/app"
	"medq/internal/client"
	"medq/internal/session"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type options struct {
	apiURL    string
	tokenFile string
	logLevel  string
}

// env is what every subcommand needs once flags are parsed.
type env struct {
	api     *client.Client
	session *session.Session
	log     *logrus.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		if f, ok := client.AsFailure(err); ok {
			fmt.Fprintln(os.Stderr, f.Message())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	app.LoadDotEnv()
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "medq",
		Short:         "Medical questionnaire client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", app.EnvOrDefault("MEDQ_API_URL", client.DefaultBaseURL), "backend API base URL")
	cmd.PersistentFlags().StringVar(&opts.tokenFile, "token-file", "", "session token file (default <config dir>/medq/token)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", app.EnvOrDefault("MEDQ_LOG_LEVEL", "warn"), "log level")

	cmd.AddCommand(
		loginCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		listCmd(opts),
		showCmd(opts),
		answerCmd(opts),
		adminCmd(opts),
	)
	return cmd
}

// setup builds the client and resolves the stored session.
func setup(ctx context.Context, opts *options) (*env, error) {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	log := app.NewLogger(level, os.Stderr)

	path := opts.tokenFile
	if path == "" {
		path, err = client.DefaultTokenPath()
		if err != nil {
			return nil, err
		}
	}

	api := client.New(opts.apiURL, client.NewFileTokenStore(path), client.WithLogger(log))
	s := session.New(api, log)
	s.Start(ctx)
	return &env{api: api, session: s, log: log}, nil
}

// guard applies the session gate to route and fails when it would redirect.
func (e *env) guard(route string) error {
	redirect, ok := e.session.Guard(route)
	if ok {
		return nil
	}
	switch redirect {
	case session.RouteLogin:
		return fmt.Errorf("not logged in: run `medq login`")
	case session.RouteQuestionnaires:
		return fmt.Errorf("admin access required")
	default:
		return fmt.Errorf("session not ready")
	}
}

