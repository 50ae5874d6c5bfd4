package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/ghost/pkg/model"
	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func rememberCommand() *cli.Command {
	var cfg flagConfig

	flags := globalFlags(&cfg)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "remember",
		Usage:     "Store a fact about the user",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(text) == "" {
				return goerr.New("text is required")
			}

			p, err := cfg.load()
			if err != nil {
				return err
			}
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

			outcome, err := uc.Ingest(ctx, text)
			if errors.Is(err, model.ErrFactRejected) {
				return goerr.New("fact was rejected: " + strings.Join(rejectReasons(err), "; "))
			}
			if err != nil {
				return goerr.Wrap(err, "failed to remember")
			}

			fmt.Fprintln(c.Root().Writer, outcome.String())
			return nil
		},
	}
}

func rejectReasons(err error) []string {
	var ge *goerr.Error
	if !errors.As(err, &ge) {
		return nil
	}
	reasons, _ := ge.Values()["reasons"].([]string)
	return reasons
}

func recallCommand() *cli.Command {
	var (
		cfg       flagConfig
		limit     int64
		threshold float64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"k"},
			Usage:       "Maximum number of facts (default: memory.retrieve_limit)",
			Destination: &limit,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Aliases:     []string{"t"},
			Usage:       "Minimum cosine similarity (0: configured default)",
			Destination: &threshold,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Show facts relevant to a query, best first",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("query is required")
			}
			opts := memoryuc.RetrieveOptions{Threshold: threshold}
			if c.IsSet("limit") {
				if limit < 0 {
					return goerr.New("limit must not be negative", goerr.V("limit", limit))
				}
				opts.Limit = memoryuc.Limit(int(limit))
			}

			p, err := cfg.load()
			if err != nil {
				return err
			}
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

			matches := uc.Recall(ctx, query, opts)
			for _, m := range matches {
				fmt.Fprintf(c.Root().Writer, "%.3f\t%s\t%s\n", m.Similarity, m.Fact.Slot, m.Fact.Text)
			}
			return nil
		},
	}
}

type listedFact struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Slot      string    `json:"slot"`
	CreatedAt time.Time `json:"created_at"`
}

func listCommand() *cli.Command {
	var (
		cfg    flagConfig
		asJSON bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print facts as a JSON array with their metadata",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List every stored fact in insertion order",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			p, err := cfg.load()
			if err != nil {
				return err
			}
			if ctx, err = withLogger(ctx, p); err != nil {
				return err
			}

			uc, closer, err := newMemory(ctx, p, nil)
			if err != nil {
				return err
			}
			defer closer()

			facts, err := uc.Facts(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list facts")
			}

			if !asJSON {
				for _, f := range facts {
					fmt.Fprintln(c.Root().Writer, f.Text)
				}
				return nil
			}

			out := make([]listedFact, 0, len(facts))
			for _, f := range facts {
				out = append(out, listedFact{
					ID:        string(f.ID),
					Text:      f.Text,
					Slot:      string(f.Slot),
					CreatedAt: f.CreatedAt,
				})
			}
			enc := json.NewEncoder(c.Root().Writer)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return goerr.Wrap(err, "failed to encode facts")
			}
			return nil
		},
	}
}

func snapshotFlags(bucket, key *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for the snapshot",
			Sources:     cli.EnvVars("GHOST_SNAPSHOT_BUCKET"),
			Destination: bucket,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "key",
			Aliases:     []string{"k"},
			Usage:       "Object key of the snapshot",
			Value:       "ghost/memory_store.jsonl",
			Sources:     cli.EnvVars("GHOST_SNAPSHOT_KEY"),
			Destination: key,
		},
	}
}

func exportCommand() *cli.Command {
	var (
		cfg         flagConfig
		bucket, key string
	)

	flags := snapshotFlags(&bucket, &key)
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Upload a snapshot of the fact store to Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			p, err := cfg.load()
			if err != nil {
				return err
			}
			if ctx, err = withLogger(ctx, p); err != nil {
				return err
			}

			storage, err := newStorage(ctx, bucket)
			if err != nil {
				return err
			}
			uc, closer, err := newMemory(ctx, p, nil)
			if err != nil {
				return err
			}
			defer closer()

			n, err := uc.Export(ctx, storage, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "exported %d facts to gs://%s/%s\n", n, bucket, key)
			return nil
		},
	}
}

func restoreCommand() *cli.Command {
	var (
		cfg         flagConfig
		bucket, key string
	)

	flags := snapshotFlags(&bucket, &key)
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "restore",
		Usage: "Replace the fact store with a snapshot from Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			p, err := cfg.load()
			if err != nil {
				return err
			}
			if ctx, err = withLogger(ctx, p); err != nil {
				return err
			}

			storage, err := newStorage(ctx, bucket)
			if err != nil {
				return err
			}
			uc, closer, err := newMemory(ctx, p, nil)
			if err != nil {
				return err
			}
			defer closer()

			n, err := uc.Restore(ctx, storage, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "restored %d facts from gs://%s/%s\n", n, bucket, key)
			return nil
		},
	}
}
