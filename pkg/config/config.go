package config

import (
	"os"
	"time"

	"github.com/m-mizutani/ghost/pkg/similarity"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = goerr.New("invalid configuration")

// Config is the full runtime configuration. Every field has a default, a
// YAML file only needs the keys it changes.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Store    StoreConfig  `yaml:"store"`
	Memory   MemoryConfig `yaml:"memory"`
	Gemini   GeminiConfig `yaml:"gemini"`
	Chat     ChatConfig   `yaml:"chat"`
	Policy   PolicyConfig `yaml:"policy"`
	MCP      MCPConfig    `yaml:"mcp"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type MemoryConfig struct {
	FuzzyThreshold    float64       `yaml:"fuzzy_threshold"`
	SemanticThreshold float64       `yaml:"semantic_threshold"`
	RetrieveThreshold float64       `yaml:"retrieve_threshold"`
	RetrieveLimit     int           `yaml:"retrieve_limit"`
	RecencyWindow     time.Duration `yaml:"recency_window"`
	RecencyWeight     float64       `yaml:"recency_weight"`
	// EmbeddingCacheSize is the number of fingerprints whose embedding is kept in memory
	EmbeddingCacheSize int64 `yaml:"embedding_cache_size"`
}

// Thresholds converts the memory settings for similarity.NewJudge
func (x MemoryConfig) Thresholds() similarity.Thresholds {
	return similarity.Thresholds{
		Fuzzy:    x.FuzzyThreshold,
		Semantic: x.SemanticThreshold,
		Retrieve: x.RetrieveThreshold,
	}
}

type GeminiConfig struct {
	Project             string        `yaml:"project"`
	Location            string        `yaml:"location"`
	GenerativeModel     string        `yaml:"generative_model"`
	EmbeddingModel      string        `yaml:"embedding_model"`
	EmbeddingDimensions int           `yaml:"embedding_dimensions"`
	Timeout             time.Duration `yaml:"timeout"`
	ExtractPrompt       string        `yaml:"extract_prompt"`
}

type ChatConfig struct {
	SystemPrompt      string   `yaml:"system_prompt"`
	UnclearPrompt     string   `yaml:"unclear_prompt"`
	Farewell          string   `yaml:"farewell"`
	MemoryHeader      string   `yaml:"memory_header"`
	EmptyMemory       string   `yaml:"empty_memory"`
	StopPhrases       []string `yaml:"stop_phrases"`
	MaxShortTermChars int      `yaml:"max_short_term_chars"`
	MaxToolIterations int      `yaml:"max_tool_iterations"`
	NoiseFilter       bool     `yaml:"noise_filter"`
}

type PolicyConfig struct {
	// Dir holds *.rego files with package ghost.memory. Empty disables admission checks.
	Dir string `yaml:"dir"`
}

// MCPConfig lists external MCP servers whose tools are offered to the chat model
type MCPConfig struct {
	Servers []MCPServer `yaml:"servers"`
}

type MCPServer struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Path: "ghost/memory_store.jsonl",
		},
		Memory: MemoryConfig{
			FuzzyThreshold:     similarity.DefaultFuzzyThreshold,
			SemanticThreshold:  similarity.DefaultSemanticThreshold,
			RetrieveThreshold:  similarity.DefaultRetrieveThreshold,
			RetrieveLimit:      4,
			RecencyWindow:      30 * 24 * time.Hour,
			RecencyWeight:      0.02,
			EmbeddingCacheSize: 1024,
		},
		Gemini: GeminiConfig{
			Location:            "us-central1",
			GenerativeModel:     "gemini-2.5-flash",
			EmbeddingModel:      "gemini-embedding-001",
			EmbeddingDimensions: 768,
			Timeout:             30 * time.Second,
			ExtractPrompt:       defaultExtractPrompt,
		},
		Chat: ChatConfig{
			SystemPrompt:      defaultSystemPrompt,
			UnclearPrompt:     "Sorry, I didn't catch that. Could you rephrase?",
			Farewell:          "Goodbye.",
			MemoryHeader:      "Here is what I remember about you:",
			EmptyMemory:       "Nothing, unfortunately. I have no memories about you yet.",
			StopPhrases:       []string{"תודה", "סיימתי", "זהו", "אין לי עוד שאלות", "bye", "goodbye"},
			MaxShortTermChars: 2000,
			MaxToolIterations: 4,
			NoiseFilter:       true,
		},
	}
}

const defaultSystemPrompt = "You are Ghost, a personal assistant running on the user's own computer. " +
	"You speak Hebrew, English and Russian. Your tone is smart, calm and a little cynical. " +
	"Use long-term memory when it adds value. Keep answers concise."

const defaultExtractPrompt = "You're a memory engine. If the user or assistant message contains a stable, " +
	"useful personal fact about the user (name, location, preference, etc.), extract it as one concise " +
	"sentence; otherwise reply NULL."

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid config file", goerr.V("path", path))
	}

	return cfg, nil
}

// Validate checks value ranges
func (x *Config) Validate() error {
	if _, err := logging.ParseLevel(x.LogLevel); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "bad log_level", goerr.V("log_level", x.LogLevel))
	}
	if x.Store.Path == "" {
		return goerr.Wrap(ErrInvalidConfig, "store.path is required")
	}

	for name, v := range map[string]float64{
		"memory.fuzzy_threshold":    x.Memory.FuzzyThreshold,
		"memory.semantic_threshold": x.Memory.SemanticThreshold,
		"memory.retrieve_threshold": x.Memory.RetrieveThreshold,
		"memory.recency_weight":     x.Memory.RecencyWeight,
	} {
		if v < 0 || v > 1 {
			return goerr.Wrap(ErrInvalidConfig, "value must be within [0, 1]", goerr.V("key", name), goerr.V("value", v))
		}
	}

	if x.Memory.RetrieveLimit < 1 {
		return goerr.Wrap(ErrInvalidConfig, "memory.retrieve_limit must be positive", goerr.V("value", x.Memory.RetrieveLimit))
	}
	if x.Memory.RecencyWindow <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "memory.recency_window must be positive", goerr.V("value", x.Memory.RecencyWindow))
	}
	if x.Memory.EmbeddingCacheSize < 0 {
		return goerr.Wrap(ErrInvalidConfig, "memory.embedding_cache_size must not be negative")
	}
	if x.Gemini.EmbeddingDimensions < 0 {
		return goerr.Wrap(ErrInvalidConfig, "gemini.embedding_dimensions must not be negative")
	}
	if x.Chat.MaxShortTermChars < 0 || x.Chat.MaxToolIterations < 0 {
		return goerr.Wrap(ErrInvalidConfig, "chat limits must not be negative")
	}

	seen := make(map[string]bool)
	for _, srv := range x.MCP.Servers {
		if srv.Name == "" || seen[srv.Name] {
			return goerr.Wrap(ErrInvalidConfig, "mcp server names must be unique and set", goerr.V("name", srv.Name))
		}
		seen[srv.Name] = true

		switch srv.Transport {
		case "stdio":
			if len(srv.Command) == 0 {
				return goerr.Wrap(ErrInvalidConfig, "stdio mcp server needs a command", goerr.V("name", srv.Name))
			}
		case "http":
			if srv.URL == "" {
				return goerr.Wrap(ErrInvalidConfig, "http mcp server needs a url", goerr.V("name", srv.Name))
			}
		default:
			return goerr.Wrap(ErrInvalidConfig, "unsupported mcp transport", goerr.V("name", srv.Name), goerr.V("transport", srv.Transport))
		}
	}

	return nil
}
