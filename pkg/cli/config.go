package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/policy"
	"github.com/m-mizutani/ghost/pkg/repository"
	"github.com/m-mizutani/ghost/pkg/service/embedding"
	"github.com/m-mizutani/ghost/pkg/service/fact"
	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// flagConfig holds values given by flags or environment variables. Non-empty
// values override the configuration file.
type flagConfig struct {
	configPath string
	storePath  string
	logLevel   string
	policyDir  string

	geminiProject  string
	geminiLocation string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *flagConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("GHOST_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Path to the JSONL fact store",
			Sources:     cli.EnvVars("GHOST_STORE_PATH"),
			Destination: &cfg.storePath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Log level (debug, info, warn, error)",
			Sources:     cli.EnvVars("GHOST_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego admission policies",
			Sources:     cli.EnvVars("GHOST_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *flagConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// overlay applies flag values on top of every configuration the base
// provider hands out, so reloads keep them
type overlay struct {
	base  config.Provider
	flags *flagConfig
}

func (x *overlay) Get() *config.Config {
	c := *x.base.Get()
	if x.flags.storePath != "" {
		c.Store.Path = x.flags.storePath
	}
	if x.flags.logLevel != "" {
		c.LogLevel = x.flags.logLevel
	}
	if x.flags.policyDir != "" {
		c.Policy.Dir = x.flags.policyDir
	}
	if x.flags.geminiProject != "" {
		c.Gemini.Project = x.flags.geminiProject
	}
	if x.flags.geminiLocation != "" {
		c.Gemini.Location = x.flags.geminiLocation
	}
	return &c
}

// load reads the configuration once
func (cfg *flagConfig) load() (config.Provider, error) {
	loaded, err := config.Load(cfg.configPath)
	if err != nil {
		return nil, err
	}
	p := &overlay{base: config.Static(loaded), flags: cfg}
	if err := p.Get().Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// watch reads the configuration and follows changes to the file. Without a
// file it is the same as load.
func (cfg *flagConfig) watch(ctx context.Context) (config.Provider, func(), error) {
	if cfg.configPath == "" {
		p, err := cfg.load()
		return p, func() {}, err
	}

	w, err := config.Watch(ctx, cfg.configPath)
	if err != nil {
		return nil, nil, err
	}
	p := &overlay{base: w, flags: cfg}
	if err := p.Get().Validate(); err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return p, func() { _ = w.Close() }, nil
}

// withLogger installs the configured logger into ctx and as the default.
// Logs go to stderr, stdout carries replies and the MCP stdio transport.
func withLogger(ctx context.Context, p config.Provider) (context.Context, error) {
	level := p.Get().LogLevel
	if _, err := logging.ParseLevel(level); err != nil {
		return ctx, err
	}

	logger := logging.New(level, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), nil
}

func newGemini(ctx context.Context, p config.Provider) (adapter.Gemini, error) {
	cfg := p.Get().Gemini
	if cfg.Project == "" {
		return nil, goerr.New("gemini-project is required")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.Project, cfg.Location,
		adapter.WithGenerativeModel(cfg.GenerativeModel),
		adapter.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// newMemory wires the memory use case. With a nil gemini the result can
// only read, list, export and restore; ingestion and retrieval need it.
func newMemory(ctx context.Context, p config.Provider, gemini adapter.Gemini) (*memoryuc.UseCase, func(), error) {
	cfg := p.Get()
	repo := repository.NewFile(cfg.Store.Path)

	admission, err := policy.New(ctx, cfg.Policy.Dir)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load admission policy")
	}
	opts := []memoryuc.Option{
		memoryuc.WithConfig(p),
		memoryuc.WithPolicy(admission),
	}

	if gemini == nil {
		return memoryuc.New(repo, nil, nil, opts...), func() {}, nil
	}

	embedder, err := embedding.New(gemini, embedding.WithConfig(p))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to create embedding service")
	}
	classifier := fact.NewSlotClassifier(gemini, p)

	return memoryuc.New(repo, embedder, classifier, opts...), embedder.Close, nil
}

func newStorage(ctx context.Context, bucket string) (adapter.Storage, error) {
	if bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	storage, err := adapter.NewStorage(ctx, bucket)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}
