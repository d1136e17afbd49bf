package session

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(s string) webrtc.ICECandidateInit { return webrtc.ICECandidateInit{Candidate: s} }

func TestFlushAppliesInOrderOnce(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue("s1", cand("c1"))
	b.Enqueue("s2", cand("x1"))
	b.Enqueue("s1", cand("c2"))
	b.Enqueue("s1", cand("c3"))
	assert.Equal(t, 3, b.LenFor("s1"))

	var got []string
	n, err := b.Flush("s1", func(c webrtc.ICECandidateInit) error {
		got = append(got, c.Candidate)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"c1", "c2", "c3"}, got)

	n, err = b.Flush("s1", func(webrtc.ICECandidateInit) error {
		t.Fatal("flushed twice")
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, b.Len())
}

func TestFlushContinuesPastFailures(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue("s1", cand("c1"))
	b.Enqueue("s1", cand("bad"))
	b.Enqueue("s1", cand("c3"))

	boom := errors.New("boom")
	var got []string
	n, err := b.Flush("s1", func(c webrtc.ICECandidateInit) error {
		if c.Candidate == "bad" {
			return boom
		}
		got = append(got, c.Candidate)
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"c1", "c3"}, got)
}

func TestDiscard(t *testing.T) {
	b := NewCandidateBuffer()
	b.Enqueue("old", cand("c1"))
	b.Enqueue("old", cand("c2"))
	b.Enqueue("new", cand("n1"))

	assert.Equal(t, 2, b.Discard("old"))
	assert.Zero(t, b.Discard("old"))
	assert.Equal(t, 1, b.Len())
	assert.Zero(t, b.LenFor("old"))
}
