// Package media owns the local outgoing tracks and drains incoming ones.
package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrKindMismatch = errors.New("track kind mismatch")
	ErrUnknownKind  = errors.New("unsupported track kind")
)

var kindOrder = []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}

// Registry holds at most one outgoing track per kind. It implements core.MediaSource.
type Registry struct {
	mu     sync.RWMutex
	tracks map[webrtc.RTPCodecType]webrtc.TrackLocal
}

func NewRegistry(tracks ...webrtc.TrackLocal) *Registry {
	r := &Registry{tracks: make(map[webrtc.RTPCodecType]webrtc.TrackLocal)}
	for _, t := range tracks {
		if t != nil {
			r.tracks[t.Kind()] = t
		}
	}
	return r
}

// CurrentTracks returns audio first, then video.
func (r *Registry) CurrentTracks() []webrtc.TrackLocal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]webrtc.TrackLocal, 0, len(r.tracks))
	for _, k := range kindOrder {
		if t, ok := r.tracks[k]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Track(kind webrtc.RTPCodecType) (webrtc.TrackLocal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tracks[kind]
	return t, ok
}

func (r *Registry) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) (webrtc.TrackLocal, error) {
	if kind != webrtc.RTPCodecTypeAudio && kind != webrtc.RTPCodecTypeVideo {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if track == nil {
		return nil, fmt.Errorf("%w: nil track", ErrKindMismatch)
	}
	if track.Kind() != kind {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrKindMismatch, track.Kind(), kind)
	}
	r.mu.Lock()
	prev := r.tracks[kind]
	r.tracks[kind] = track
	r.mu.Unlock()
	log.Info().Str("module", "media").Str("kind", kind.String()).Str("track_id", track.ID()).Msg("outgoing track replaced")
	return prev, nil
}
