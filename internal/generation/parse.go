package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// rawCandidate is the shape of one candidate object in a model response.
type rawCandidate struct {
	Text     string         `json:"text"`
	Style    string         `json:"style"`
	Features map[string]any `json:"features"`
	Meta     map[string]any `json:"meta"`
}

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")
)

// wrapperKeys are object keys models commonly wrap candidate arrays in.
var wrapperKeys = []string{"candidates", "outputs", "choices", "data"}

// parseCandidatesPayload extracts a candidate list from a model response.
// Models do not reliably return a bare JSON array: the payload may be
// wrapped in a code fence, nested under a wrapper key, double-encoded as a
// string, or preceded by prose. Each shape is tried in turn.
func parseCandidatesPayload(raw string) ([]rawCandidate, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = fenceOpen.ReplaceAllString(raw, "")
		raw = fenceClose.ReplaceAllString(raw, "")
		raw = strings.TrimSpace(raw)
	}
	if raw == "" {
		return nil, errors.New("empty payload")
	}

	snippets := []string{raw}
	for _, token := range []string{"[", "{"} {
		if idx := strings.Index(raw, token); idx > 0 {
			snippets = append(snippets, raw[idx:])
		}
	}

	for _, snippet := range snippets {
		if candidates, ok := decodeSnippet(snippet); ok {
			return candidates, nil
		}
	}
	return nil, fmt.Errorf("could not parse candidates from payload")
}

// decodeSnippet attempts one snippet as a bare array or a wrapper object.
// A json.Decoder is used so trailing prose after the JSON value is ignored.
func decodeSnippet(snippet string) ([]rawCandidate, bool) {
	dec := json.NewDecoder(strings.NewReader(snippet))

	var list []rawCandidate
	if err := dec.Decode(&list); err == nil && len(list) > 0 {
		return list, true
	}

	dec = json.NewDecoder(strings.NewReader(snippet))
	var wrapper map[string]json.RawMessage
	if err := dec.Decode(&wrapper); err != nil {
		return nil, false
	}

	for _, key := range wrapperKeys {
		value, ok := wrapper[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, &list); err == nil && len(list) > 0 {
			return list, true
		}
		// Some models double-encode the array as a JSON string.
		var encoded string
		if err := json.Unmarshal(value, &encoded); err == nil {
			if err := json.Unmarshal([]byte(encoded), &list); err == nil && len(list) > 0 {
				return list, true
			}
		}
	}
	return nil, false
}
