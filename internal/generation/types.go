// Package generation produces candidate replies for a conversation turn,
// either through the OpenAI API or a deterministic per-style fallback.
package generation

import "sort"

// Message is a single entry in the dialog history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Candidate is one generated reply with attached feature metadata.
type Candidate struct {
	Text     string         `json:"text"`
	Style    string         `json:"style"`
	Features map[string]any `json:"features"`
}

// Context is the input for generating reply candidates.
type Context struct {
	Messages       []Message      `json:"messages"`
	UserProfile    map[string]any `json:"user_profile,omitempty"`
	Goal           string         `json:"goal,omitempty"`
	Constraints    map[string]any `json:"constraints,omitempty"`
	StylesAllowed  []string       `json:"styles_allowed,omitempty"`
	CandidateCount int            `json:"candidate_count"`
}

// LastUserMessage returns the content of the most recent user message, or
// the empty string when the history holds none.
func (c *Context) LastUserMessage() string {
	return lastUserMessage(c.Messages)
}

// StyleTraits are the catalog attributes attached to a reply style.
type StyleTraits struct {
	Initiative  float64 `json:"initiative"`
	Risk        float64 `json:"risk"`
	Description string  `json:"description,omitempty"`
}

// StylesCatalog maps style names to their traits.
type StylesCatalog map[string]StyleTraits

// Traits looks up the attributes for a style.
func (sc StylesCatalog) Traits(style string) (StyleTraits, bool) {
	t, ok := sc[style]
	return t, ok
}

// Names returns the style names in sorted order so callers iterating the
// catalog behave deterministically.
func (sc StylesCatalog) Names() []string {
	names := make([]string, 0, len(sc))
	for name := range sc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
