// Package transcript accumulates streaming recognition updates into segments.
package transcript

import "strings"

// Break marks what separates a segment from the one before it.
type Break int

const (
	BreakNone Break = iota
	// BreakUtterance follows a final recognition update.
	BreakUtterance
	// BreakPause follows a pause/resume cycle.
	BreakPause
)

// Delimiter renders the boundary between two non-empty segments.
func (b Break) Delimiter() string {
	switch b {
	case BreakPause:
		return "\n\n"
	case BreakUtterance:
		return " "
	default:
		return ""
	}
}

// Segment is one closed span of recognized text.
type Segment struct {
	Text  string
	Break Break
	Final bool
}

// Update is one recognition result for the current utterance.
type Update struct {
	Text    string
	IsFinal bool
}

// Accumulator merges recognition updates into closed segments plus one
// in-progress segment. It is not safe for concurrent use.
type Accumulator struct {
	closed  []Segment
	current Segment
	open    bool
}

// NewAccumulator returns an accumulator with an empty in-progress segment.
func NewAccumulator() *Accumulator {
	return &Accumulator{open: true}
}

// Apply overwrites the in-progress text. A final update closes the segment and
// opens an empty one.
func (a *Accumulator) Apply(u Update) {
	if !a.open {
		a.OpenSegment()
	}
	a.current.Text = u.Text
	if !u.IsFinal {
		return
	}
	a.current.Final = true
	a.closed = append(a.closed, a.current)
	a.current = Segment{Break: BreakUtterance}
}

// CloseSegment freezes the in-progress text regardless of finality. Calling it
// again before OpenSegment is a no-op.
func (a *Accumulator) CloseSegment() {
	if !a.open {
		return
	}
	a.closed = append(a.closed, a.current)
	a.current = Segment{}
	a.open = false
}

// OpenSegment starts a pause-bounded in-progress segment.
func (a *Accumulator) OpenSegment() {
	if a.open {
		return
	}
	a.current = Segment{Break: BreakPause}
	if len(a.closed) == 0 {
		a.current.Break = BreakNone
	}
	a.open = true
}

// InProgress returns the current segment text.
func (a *Accumulator) InProgress() string {
	if !a.open {
		return ""
	}
	return a.current.Text
}

// Current returns the in-progress segment, if one is open.
func (a *Accumulator) Current() (Segment, bool) {
	return a.current, a.open
}

// Segments returns a copy of the closed segments.
func (a *Accumulator) Segments() []Segment {
	out := make([]Segment, len(a.closed))
	copy(out, a.closed)
	return out
}

// FullText joins closed segments and the in-progress text. Empty segments are
// skipped but their boundaries still count, so a pause after a final update
// renders as a blank line.
func (a *Accumulator) FullText() string {
	var b strings.Builder
	pending := BreakNone
	write := func(seg Segment) {
		if seg.Break > pending {
			pending = seg.Break
		}
		text := normalize(seg.Text)
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString(pending.Delimiter())
		}
		b.WriteString(text)
		pending = BreakNone
	}

	for _, seg := range a.closed {
		write(seg)
	}
	if a.open {
		write(a.current)
	}
	return b.String()
}

// Reset drops every segment.
func (a *Accumulator) Reset() {
	a.closed = nil
	a.current = Segment{}
	a.open = true
}

func normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
