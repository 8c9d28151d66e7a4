// Package transcript accumulates recognition output for a listening session.
package transcript

import (
	"strings"
	"sync"
)

// Transcript is an append-only log of finalized segments plus at most one
// pending partial segment. Finalized segments keep their arrival order and
// are never rewritten; the partial is replaced on every intermediate update
// and cleared when a segment finalizes.
type Transcript struct {
	mu      sync.Mutex
	finals  []string
	partial string
}

func New() *Transcript {
	return &Transcript{}
}

// ApplyPartial replaces the pending partial segment.
func (t *Transcript) ApplyPartial(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = text
}

// ApplyFinal appends a finalized segment and clears the pending partial.
// Empty segments are ignored.
func (t *Transcript) ApplyFinal(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partial = ""
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}
	t.finals = append(t.finals, trimmed)
}

// Partial returns the pending unfinalized segment, if any.
func (t *Transcript) Partial() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partial
}

// Segments returns a copy of the finalized segments in arrival order.
func (t *Transcript) Segments() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.finals))
	copy(out, t.finals)
	return out
}

// FinalText joins the finalized segments with single spaces.
func (t *Transcript) FinalText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.finals, " ")
}

// Tail returns the last limit characters of the finalized text, or all of it
// when shorter. Characters, not bytes: a multi-byte rune counts once.
func (t *Transcript) Tail(limit int) string {
	full := t.FinalText()
	if limit <= 0 {
		return ""
	}
	runes := []rune(full)
	if len(runes) <= limit {
		return full
	}
	return string(runes[len(runes)-limit:])
}

// Reset discards all accumulated text for a fresh listening session.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finals = nil
	t.partial = ""
}
