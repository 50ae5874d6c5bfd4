package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/ghost/pkg/service/mcp"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg       flagConfig
		transport string
		addr      string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "transport",
			Usage:       "MCP transport (stdio, http)",
			Value:       "stdio",
			Sources:     cli.EnvVars("GHOST_MCP_TRANSPORT"),
			Destination: &transport,
		},
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address for the http transport",
			Value:       "127.0.0.1:8787",
			Sources:     cli.EnvVars("GHOST_MCP_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Expose long-term memory to other agents over MCP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if transport != "stdio" && transport != "http" {
				return goerr.New("unsupported transport", goerr.V("transport", transport))
			}

			p, stopWatch, err := cfg.watch(ctx)
			if err != nil {
				return err
			}
			defer stopWatch()

			if ctx, err = withLogger(ctx, p); err != nil {
				return err
			}

			gemini, err := newGemini(ctx, p)
			if err != nil {
				return err
			}
			uc, closer, err := newMemory(ctx, p, gemini)
			if err != nil {
				return err
			}
			defer closer()

			server := mcp.NewServer(uc)
			if transport == "stdio" {
				return server.RunStdio(ctx)
			}
			return serveHTTP(ctx, addr, server.Handler())
		},
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	logger := logging.From(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "mcp http server failed", goerr.V("addr", addr))
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return goerr.Wrap(err, "failed to shut down mcp http server")
		}
		return nil
	}
}
