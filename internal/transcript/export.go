package transcript

import (
	"encoding/json"
	"regexp"
	"strings"
)

var linePrefix = regexp.MustCompile(`^\[((?:\d{2}:)?\d{2}:\d{2})\] (.*)$`)

// Entry is one line of the structured export. Timestamp is empty for lines without a prefix.
type Entry struct {
	Timestamp string `json:"timestamp,omitempty"`
	Text      string `json:"text"`
}

// PlainText is the rendered transcript verbatim.
func PlainText(rendered string) string {
	return rendered
}

func Structured(rendered string) []Entry {
	if rendered == "" {
		return []Entry{}
	}
	lines := strings.Split(rendered, "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if m := linePrefix.FindStringSubmatch(line); m != nil {
			entries = append(entries, Entry{Timestamp: m[1], Text: m[2]})
			continue
		}
		entries = append(entries, Entry{Text: line})
	}
	return entries
}

func MarshalStructured(rendered string) ([]byte, error) {
	return json.MarshalIndent(Structured(rendered), "", "  ")
}
