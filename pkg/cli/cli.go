package cli

import (
	"context"

	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// version is set at build time with -ldflags
var version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var logLevel string

	cmd := &cli.Command{
		Name:    "culprit",
		Usage:   "Find the recent pull request behind a production issue",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("CULPRIT_LOG_LEVEL"),
				Destination: &logLevel,
			},
		},
		Commands: []*cli.Command{
			ingestCommand(),
			searchCommand(),
			diffCommand(),
			diagnoseCommand(),
			historyCommand(),
			serveCommand(),
		},
	}

	// Subcommand actions pick the logger up from the level parsed here
	ctx = logging.With(ctx, logging.Default())
	for _, sub := range cmd.Commands {
		wrapAction(sub, &logLevel)
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.From(ctx).Debug("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// wrapAction installs the logger selected by --log-level before running the action.
func wrapAction(cmd *cli.Command, logLevel *string) {
	for _, sub := range cmd.Commands {
		wrapAction(sub, logLevel)
	}
	if cmd.Action == nil {
		return
	}

	action := cmd.Action
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		logger := logging.New(*logLevel, nil)
		logging.SetDefault(logger)
		return action(logging.With(ctx, logger), c)
	}
}
