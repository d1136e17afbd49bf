package session

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

type bufferedCandidate struct {
	session   string
	candidate webrtc.ICECandidateInit
}

// CandidateBuffer holds remote candidates that arrived before their session's
// remote description. Entries are applied FIFO, at most once.
type CandidateBuffer struct {
	mu      sync.Mutex
	entries []bufferedCandidate
}

func NewCandidateBuffer() *CandidateBuffer {
	return &CandidateBuffer{}
}

func (b *CandidateBuffer) Enqueue(sessionID string, c webrtc.ICECandidateInit) {
	b.mu.Lock()
	b.entries = append(b.entries, bufferedCandidate{session: sessionID, candidate: c})
	b.mu.Unlock()
}

// Flush removes every entry of sessionID and hands it to apply in arrival order.
// A failing candidate does not stop the rest; failures are joined into err.
func (b *CandidateBuffer) Flush(sessionID string, apply func(webrtc.ICECandidateInit) error) (applied int, err error) {
	pending := b.take(sessionID)
	var errs []error
	for _, c := range pending {
		if aerr := apply(c); aerr != nil {
			errs = append(errs, aerr)
			continue
		}
		applied++
	}
	return applied, errors.Join(errs...)
}

// Discard drops every entry of a torn-down session and returns how many were dropped.
func (b *CandidateBuffer) Discard(sessionID string) int {
	return len(b.take(sessionID))
}

func (b *CandidateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *CandidateBuffer) LenFor(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.entries {
		if e.session == sessionID {
			n++
		}
	}
	return n
}

func (b *CandidateBuffer) take(sessionID string) []webrtc.ICECandidateInit {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []webrtc.ICECandidateInit
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.session == sessionID {
			out = append(out, e.candidate)
			continue
		}
		kept = append(kept, e)
	}
	clear(b.entries[len(kept):])
	b.entries = kept
	return out
}
