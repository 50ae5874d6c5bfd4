package fact

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/slot.md
var slotPromptRaw string

var slotPromptTmpl = template.Must(template.New("slot").Parse(slotPromptRaw))

// SlotClassifier labels facts with Gemini
type SlotClassifier struct {
	gemini adapter.Gemini
	cfg    config.Provider
}

func NewSlotClassifier(gemini adapter.Gemini, cfg config.Provider) *SlotClassifier {
	if cfg == nil {
		cfg = config.Static(config.Default())
	}
	return &SlotClassifier{gemini: gemini, cfg: cfg}
}

// ClassifySlot never fails. Any problem yields the GENERIC fallback with the cause attached.
func (c *SlotClassifier) ClassifySlot(ctx context.Context, fact string) model.SlotLabel {
	var buf bytes.Buffer
	if err := slotPromptTmpl.Execute(&buf, map[string]any{"Fact": fact}); err != nil {
		return model.FallbackSlot(goerr.Wrap(err, "failed to execute slot prompt template"))
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"slot": {
				Type:        genai.TypeString,
				Description: "Upper-case slot label such as NAME, LOCATION, PREF, HABIT or OTHER",
			},
		},
		Required: []string{"slot"},
	}

	var out struct {
		Slot string `json:"slot"`
	}
	if err := generateJSON(ctx, c.gemini, buf.String(), schema, c.cfg.Get().Gemini.Timeout, &out); err != nil {
		return model.FallbackSlot(goerr.Wrap(err, "failed to classify slot", goerr.V("fact", fact)))
	}

	if strings.TrimSpace(out.Slot) == "" {
		return model.FallbackSlot(goerr.New("classifier returned empty slot", goerr.V("fact", fact)))
	}

	return model.SlotLabel{Slot: model.NormalizeSlot(out.Slot)}
}
