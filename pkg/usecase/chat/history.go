package chat

import (
	"unicode/utf8"

	"google.golang.org/genai"
)

// Turn is one message of the short-term conversation
type Turn struct {
	Role genai.Role
	Text string
}

// history is the short-term memory of a session. It lives only as long as
// the session; long-term facts go to the memory store.
type history struct {
	turns []Turn

	// summary of turns[:summarized], reused until the history grows
	summary    string
	summarized int
}

func (h *history) add(user, assistant string) {
	h.turns = append(h.turns,
		Turn{Role: genai.RoleUser, Text: user},
		Turn{Role: genai.RoleModel, Text: assistant},
	)
}

// chars is the size of the history in characters
func (h *history) chars() int {
	n := 0
	for _, t := range h.turns {
		n += utf8.RuneCountInString(t.Text)
	}
	return n
}

func (h *history) contents() []*genai.Content {
	contents := make([]*genai.Content, 0, len(h.turns))
	for _, t := range h.turns {
		contents = append(contents, genai.NewContentFromText(t.Text, t.Role))
	}
	return contents
}

func (h *history) snapshot() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}
