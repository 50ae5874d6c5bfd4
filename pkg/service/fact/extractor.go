package fact

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/extract.md
var extractPromptRaw string

var extractPromptTmpl = template.Must(template.New("extract").Parse(extractPromptRaw))

// Extractor proposes a memorable fact from one exchange
type Extractor struct {
	gemini adapter.Gemini
	cfg    config.Provider
}

func NewExtractor(gemini adapter.Gemini, cfg config.Provider) *Extractor {
	if cfg == nil {
		cfg = config.Static(config.Default())
	}
	return &Extractor{gemini: gemini, cfg: cfg}
}

// ExtractFact returns the fact and true, or false when there is nothing to
// remember or the model could not be asked
func (x *Extractor) ExtractFact(ctx context.Context, userTurn, assistantTurn string) (string, bool) {
	logger := logging.From(ctx)
	gcfg := x.cfg.Get().Gemini

	var buf bytes.Buffer
	if err := extractPromptTmpl.Execute(&buf, map[string]any{
		"Instruction": gcfg.ExtractPrompt,
		"User":        userTurn,
		"Assistant":   assistantTurn,
	}); err != nil {
		logger.Warn("failed to build extraction prompt", "error", err)
		return "", false
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"fact": {
				Type:        genai.TypeString,
				Description: "One concise sentence about the user, or NULL",
				Nullable:    genai.Ptr(true),
			},
		},
		Required: []string{"fact"},
	}

	var out struct {
		Fact *string `json:"fact"`
	}
	if err := generateJSON(ctx, x.gemini, buf.String(), schema, gcfg.Timeout, &out); err != nil {
		logger.Warn("fact extraction failed", "error", err)
		return "", false
	}

	if out.Fact == nil {
		return "", false
	}
	fact := strings.TrimSpace(*out.Fact)
	if fact == "" || strings.EqualFold(strings.Trim(fact, ".\"' "), "null") {
		return "", false
	}

	return fact, true
}
