package cli

import (
	"context"
	"errors"

	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Exit codes returned through Error.Code
const (
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Error is what main prints before exiting with Code
type Error struct {
	Code    int
	Message string
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "ghost",
		Usage: "Personal assistant with long-term memory about its user",
		Commands: []*cli.Command{
			chatCommand(),
			rememberCommand(),
			recallCommand(),
			listCommand(),
			exportCommand(),
			restoreCommand(),
			serveCommand(),
		},
	}
}

func Run(ctx context.Context, argv []string) *Error {
	err := newApp().Run(ctx, argv)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return &Error{Code: ExitInterrupted, Message: "interrupted"}
	}

	logging.Default().Debug("command failed", "error", err)
	return &Error{Code: ExitFailure, Message: err.Error()}
}
