package chat

import (
	"context"
	_ "embed"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/intelligible.md
var intelligiblePromptRaw string

const (
	intelligibleScore = 0.55
	noiseScore        = 0.35
)

var (
	// no letters at all: punctuation, digits, emoji, symbols
	noLetters = regexp.MustCompile(`^[^\p{L}\p{M}]+$`)

	hebrewLetter   = regexp.MustCompile(`[א-ת]`)
	latinLetter    = regexp.MustCompile(`[A-Za-z]`)
	cyrillicLetter = regexp.MustCompile(`[А-Яа-я]`)

	keyboardRows = []string{
		// QWERTY
		"qwertyuiop", "asdfghjkl", "zxcvbnm",
		// Hebrew layout
		"/'קראטוןםפ", "שדגכעיחלץ", ",תצקרד/\\", "זסבהנמצת",
	}
)

// noiseFilter rejects hot-mic garbage before it reaches the model. It runs a
// cheap letter check, then a heuristic score, and asks the model only when
// the score is ambiguous. A failed model call accepts the text.
type noiseFilter struct {
	gemini adapter.Gemini
}

func (f *noiseFilter) isNoise(ctx context.Context, text string) bool {
	txt := strings.TrimSpace(text)
	if txt == "" || noLetters.MatchString(txt) {
		return true
	}

	score := heuristicScore(txt)
	switch {
	case score >= intelligibleScore:
		return false
	case score <= noiseScore:
		return true
	}

	if f.gemini == nil {
		return false
	}
	return !f.vote(ctx, txt)
}

func (f *noiseFilter) vote(ctx context.Context, txt string) bool {
	resp, err := f.gemini.GenerateContent(ctx, []*genai.Content{genai.NewContentFromText(txt, genai.RoleUser)}, quietConfig(intelligiblePromptRaw, 0, 2))
	if err != nil {
		logging.From(ctx).Warn("intelligibility check failed, accepting input", "error", err)
		return true
	}

	answer := strings.ToUpper(candidateText(resp))
	return strings.HasPrefix(answer, "Y")
}

// heuristicScore is 1 for clearly intelligible text and 0 for noise
func heuristicScore(txt string) float64 {
	length := utf8.RuneCountInString(txt)
	if length == 0 {
		return 0
	}

	ratio := func(re *regexp.Regexp) float64 {
		return float64(len(re.FindAllStringIndex(txt, -1))) / float64(length)
	}

	digits := 0
	for _, r := range txt {
		if unicode.IsDigit(r) {
			digits++
		}
	}

	features := []float64{
		1, // reached only when the text has letters
		ratio(hebrewLetter),
		ratio(latinLetter),
		ratio(cyrillicLetter),
		1 - float64(digits)/float64(length),
		boolScore(!hasRepeatStreak(txt, 4)),
		boolScore(!looksLikeRowMash(txt)),
	}

	switch {
	case length < 3:
		features = append(features, 0)
	case length < 200:
		features = append(features, 1)
	default:
		features = append(features, 0.7)
	}

	sum := 0.0
	for _, v := range features {
		sum += v
	}
	return sum / float64(len(features))
}

func boolScore(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

// hasRepeatStreak reports whether any character appears n or more times in a row
func hasRepeatStreak(txt string, n int) bool {
	var prev rune
	streak := 0
	for i, r := range []rune(txt) {
		if i > 0 && r == prev {
			streak++
		} else {
			streak = 1
		}
		if streak >= n {
			return true
		}
		prev = r
	}
	return false
}

// looksLikeRowMash detects "asdfgh" style runs along one keyboard row
func looksLikeRowMash(txt string) bool {
	lowered := strings.ToLower(txt)
	reversed := reverse(lowered)
	for _, row := range keyboardRows {
		if strings.Contains(row, lowered) || strings.Contains(row, reversed) {
			return true
		}
	}
	return false
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
