package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// SchemaVersion is written into every record
const SchemaVersion = 1

// maxLineSize bounds one JSONL record. A 3072-dim embedding in JSON is well
// below this.
const maxLineSize = 4 * 1024 * 1024

// record is the on-disk form of a fact. The short keys t, v and fp belong to
// stores written by earlier versions and are only read.
type record struct {
	Schema      int       `json:"schema,omitempty"`
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"text"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Slot        string    `json:"slot,omitempty"`
	CreatedAt   float64   `json:"created_at,omitempty"`

	LegacyTime        float64   `json:"t,omitempty"`
	LegacyEmbedding   []float32 `json:"v,omitempty"`
	LegacyFingerprint string    `json:"fp,omitempty"`
}

func toRecord(f *model.Fact) record {
	return record{
		Schema:      SchemaVersion,
		ID:          string(f.ID),
		Text:        f.Text,
		Fingerprint: f.Fingerprint,
		Embedding:   f.Embedding,
		Slot:        string(f.Slot),
		CreatedAt:   toUnixSeconds(f.CreatedAt),
	}
}

func (r record) toFact() *model.Fact {
	f := &model.Fact{
		ID:        model.FactID(r.ID),
		Slot:      model.NormalizeSlot(r.Slot),
		Embedding: r.Embedding,
	}
	if f.ID == "" {
		f.ID = model.NewFactID()
	}
	if len(f.Embedding) == 0 {
		f.Embedding = r.LegacyEmbedding
	}

	ts := r.CreatedAt
	if ts == 0 {
		ts = r.LegacyTime
	}
	f.CreatedAt = fromUnixSeconds(ts)

	// stored fingerprint is ignored, it is always derived from text
	f.SetText(r.Text)
	return f
}

func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	micro := int64(math.Round(sec * 1e6))
	return time.UnixMicro(micro).UTC()
}

// EncodeFacts writes facts as JSONL, one record per line, in the given order
func EncodeFacts(w io.Writer, facts []*model.Fact) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, f := range facts {
		if err := enc.Encode(toRecord(f)); err != nil {
			return goerr.Wrap(err, "failed to encode fact", goerr.V("index", i), goerr.V("id", f.ID))
		}
	}
	return nil
}

// DecodeFacts reads JSONL records. Blank lines are ignored. Lines that can
// not be parsed, that carry no text, or that exceed maxLineSize are skipped
// with a warning.
func DecodeFacts(ctx context.Context, r io.Reader) ([]*model.Fact, error) {
	logger := logging.From(ctx)
	br := bufio.NewReaderSize(r, 64*1024)

	var facts []*model.Fact
	for lineNo := 1; ; lineNo++ {
		raw, oversized, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, goerr.Wrap(err, "failed to read fact records", goerr.V("line", lineNo))
		}

		switch {
		case oversized:
			logger.Warn("skipping oversized fact record", "line", lineNo, "limit", maxLineSize)
		default:
			if f := decodeLine(logger, lineNo, raw); f != nil {
				facts = append(facts, f)
			}
		}

		if err != nil {
			return facts, nil
		}
	}
}

// readLine returns the next line without its size bound. The remainder of a
// line longer than maxLineSize is consumed and dropped.
func readLine(br *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxLineSize {
				oversized, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, oversized, err
		}
	}
}

func decodeLine(logger *slog.Logger, lineNo int, raw []byte) *model.Fact {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil
	}

	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		logger.Warn("skipping unparseable fact record", "line", lineNo, "error", err)
		return nil
	}
	if strings.TrimSpace(rec.Text) == "" {
		logger.Warn("skipping fact record without text", "line", lineNo)
		return nil
	}
	if rec.Schema > SchemaVersion {
		logger.Warn("fact record has newer schema", "line", lineNo, "schema", rec.Schema)
	}
	return rec.toFact()
}
