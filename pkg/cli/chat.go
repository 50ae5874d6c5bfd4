package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/ghost/pkg/service/fact"
	"github.com/m-mizutani/ghost/pkg/service/mcp"
	"github.com/m-mizutani/ghost/pkg/tool"
	toolmemory "github.com/m-mizutani/ghost/pkg/tool/memory"
	"github.com/m-mizutani/ghost/pkg/usecase/chat"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg      flagConfig
		noLearn  bool
		noRemote bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "no-learn",
			Usage:       "Do not store facts learned during the conversation",
			Sources:     cli.EnvVars("GHOST_NO_LEARN"),
			Destination: &noLearn,
		},
		&cli.BoolFlag{
			Name:        "no-mcp",
			Usage:       "Do not connect MCP servers listed in the configuration",
			Destination: &noRemote,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk with the assistant",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			p, stopWatch, err := cfg.watch(ctx)
			if err != nil {
				return err
			}
			defer stopWatch()

			if ctx, err = withLogger(ctx, p); err != nil {
				return err
			}
			logger := logging.From(ctx)

			gemini, err := newGemini(ctx, p)
			if err != nil {
				return err
			}
			uc, closer, err := newMemory(ctx, p, gemini)
			if err != nil {
				return err
			}
			defer closer()

			tools := []tool.Tool{toolmemory.New(uc)}
			if !noRemote && len(p.Get().MCP.Servers) > 0 {
				remote := mcp.ConnectAll(ctx, p.Get().MCP.Servers)
				defer func() {
					if err := remote.Close(); err != nil {
						logger.Warn("failed to close mcp sessions", "error", err)
					}
				}()
				tools = append(tools, remote)
			}

			input := chat.NewInput{
				Gemini: gemini,
				Memory: uc,
				Config: p,
				Tools:  tool.New(tools...),
			}
			if !noLearn {
				input.Extractor = fact.NewExtractor(gemini, p)
			}
			session := chat.New(input)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start line editor")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintln(w, "Chat session started. Ctrl+D to quit.")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}
				if strings.TrimSpace(line) == "" {
					continue
				}

				out := newSpinWriter(w)
				reply, err := session.Send(ctx, line, out)
				out.stop()
				fmt.Fprintln(w)
				if err != nil {
					return goerr.Wrap(err, "failed to handle message")
				}

				if reply.Learned != "" {
					logger.Info("learned", "fact", reply.Learned, "outcome", reply.Outcome.String())
				}
				if reply.Done {
					break
				}
			}

			return nil
		},
	}
}

// spinWriter shows a spinner on stderr until the first reply text arrives
type spinWriter struct {
	w    io.Writer
	spin *spinner.Spinner
	once sync.Once
}

func newSpinWriter(w io.Writer) *spinWriter {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " thinking..."
	s.Start()
	return &spinWriter{w: w, spin: s}
}

func (x *spinWriter) stop() {
	x.once.Do(x.spin.Stop)
}

func (x *spinWriter) Write(p []byte) (int, error) {
	x.stop()
	return x.w.Write(p)
}
