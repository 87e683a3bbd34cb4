package transcript

import (
	"slices"
	"strings"
)

type Kind int

const (
	KindFinal Kind = iota
	KindUser
)

func (k Kind) String() string {
	if k == KindUser {
		return "user"
	}
	return "final"
}

// Event is one committed line of the transcript. TimestampMs is measured from session start.
type Event struct {
	TimestampMs int64
	Text        string
	Kind        Kind
}

// Ledger holds the committed events of one session plus at most one live interim segment.
// It is not safe for concurrent use; the session controller serializes access.
type Ledger struct {
	events  []Event
	interim *Event
	marker  string
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Reset drops everything. Only a fresh session start calls it.
func (l *Ledger) Reset() {
	l.events = nil
	l.interim = nil
	l.marker = ""
}

// ApplyRecognition merges a backend result that arrived atMs into the session.
// It reports whether the rendered transcript may have changed.
func (l *Ledger) ApplyRecognition(text string, isFinal bool, atMs int64) bool {
	text = l.dedupe(text)

	if isFinal {
		ts := atMs
		hadInterim := l.interim != nil
		if hadInterim {
			ts = l.interim.TimestampMs
		}
		l.interim = nil
		l.marker = ""
		if text == "" {
			return hadInterim
		}
		l.events = append(l.events, Event{TimestampMs: ts, Text: text, Kind: KindFinal})
		return true
	}

	if text == "" {
		return false
	}
	if l.interim == nil {
		l.interim = &Event{TimestampMs: atMs, Text: text, Kind: KindFinal}
		return true
	}
	if l.interim.Text == text {
		return false
	}
	l.interim.Text = text
	return true
}

// AppendUser commits a status annotation such as "Paused transcribing...".
func (l *Ledger) AppendUser(text string, atMs int64) {
	l.events = append(l.events, Event{TimestampMs: atMs, Text: text, Kind: KindUser})
}

// ForceFinalize commits the live interim at its original timestamp and remembers its
// text so a backend restatement of it is stripped later. Reports whether anything was committed.
func (l *Ledger) ForceFinalize() bool {
	if l.interim == nil {
		return false
	}
	seg := *l.interim
	l.interim = nil
	l.events = append(l.events, seg)
	l.marker = seg.Text
	return true
}

func (l *Ledger) dedupe(text string) string {
	if l.marker != "" && strings.HasPrefix(text, l.marker) {
		text = strings.TrimPrefix(text, l.marker)
	}
	return strings.TrimSpace(text)
}

// Events returns committed events in timestamp order, ties kept in insertion order.
func (l *Ledger) Events() []Event {
	sorted := slices.Clone(l.events)
	slices.SortStableFunc(sorted, func(a, b Event) int {
		switch {
		case a.TimestampMs < b.TimestampMs:
			return -1
		case a.TimestampMs > b.TimestampMs:
			return 1
		}
		return 0
	})
	return sorted
}

func (l *Ledger) Interim() (Event, bool) {
	if l.interim == nil {
		return Event{}, false
	}
	return *l.interim, true
}

func (l *Ledger) Len() int {
	return len(l.events)
}

// Render formats the committed events followed by the live interim, one per line.
func (l *Ledger) Render() string {
	var b strings.Builder
	for i, ev := range l.Events() {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeLine(&b, ev)
	}
	if l.interim != nil {
		if len(l.events) > 0 {
			b.WriteByte('\n')
		}
		writeLine(&b, *l.interim)
	}
	return b.String()
}

func writeLine(b *strings.Builder, ev Event) {
	b.WriteByte('[')
	b.WriteString(FormatTimestamp(ev.TimestampMs))
	b.WriteString("] ")
	b.WriteString(ev.Text)
}
