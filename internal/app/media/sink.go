package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/duocall/internal/core"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateStopped
)

// Sink drains one remote track and counts what it receives.
type Sink struct {
	Src     core.RemoteTrack
	Session string

	state   atomic.Int32
	packets atomic.Uint64
	bytes   atomic.Uint64
	lastSeq atomic.Uint32

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Sink) GetState() SinkState   { return SinkState(s.state.Load()) }
func (s *Sink) Mute()                 { s.state.CompareAndSwap(int32(SinkStateOk), int32(SinkStateMuted)) }
func (s *Sink) Unmute()               { s.state.CompareAndSwap(int32(SinkStateMuted), int32(SinkStateOk)) }
func (s *Sink) Packets() uint64       { return s.packets.Load() }
func (s *Sink) LastSeq() uint16       { return uint16(s.lastSeq.Load()) }
func (s *Sink) Bytes() uint64         { return s.bytes.Load() }
func (s *Sink) Done() <-chan struct{} { return s.done }

// loop reads RTP packets until the track ends or ctx is cancelled.
func (s *Sink) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(s.done)
	defer s.state.Store(int32(SinkStateStopped))
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("sink ctx done")
			return
		default:
		}
		pkt, _, err := s.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Uint64("packets", s.packets.Load()).Msg("sink read stopped")
			return
		}
		s.consume(pkt)
	}
}

func (s *Sink) consume(pkt *rtp.Packet) {
	if s.GetState() == SinkStateMuted {
		return
	}
	s.packets.Add(1)
	s.bytes.Add(uint64(len(pkt.Payload)))
	s.lastSeq.Store(uint32(pkt.SequenceNumber))
}

// SinkStats is a read-only view for logs and APIs.
type SinkStats struct {
	Session string `json:"session"`
	TrackID string `json:"track_id"`
	Kind    string `json:"kind"`
	Packets uint64 `json:"packets"`
	Bytes   uint64 `json:"bytes"`
	LastSeq uint16 `json:"last_seq"`
	Muted   bool   `json:"muted"`
	Stopped bool   `json:"stopped"`
}

// SinkManager tracks the sinks of every remote track, grouped by session.
// Stopped sinks are kept so their counters can still be reported.
type SinkManager struct {
	mu    sync.RWMutex
	sinks map[string]map[string]*Sink
	muted map[webrtc.RTPCodecType]bool
}

func NewSinkManager() *SinkManager {
	return &SinkManager{
		sinks: make(map[string]map[string]*Sink),
		muted: make(map[webrtc.RTPCodecType]bool),
	}
}

// Start begins draining track for sessionID. A sink already running for the same track is replaced.
func (m *SinkManager) Start(ctx context.Context, sessionID string, track core.RemoteTrack) *Sink {
	logger := log.With().
		Str("module", "media.sink").
		Str("session", sessionID).
		Str("kind", track.Kind().String()).
		Str("track_id", track.ID()).
		Logger()

	sinkCtx, cancel := context.WithCancel(ctx)
	sink := &Sink{Src: track, Session: sessionID, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	bySession, ok := m.sinks[sessionID]
	if !ok {
		bySession = make(map[string]*Sink)
		m.sinks[sessionID] = bySession
	}
	if old, ok := bySession[track.ID()]; ok {
		logger.Info().Msg("replacing existing sink")
		old.cancel()
	}
	bySession[track.ID()] = sink
	if m.muted[track.Kind()] {
		sink.Mute()
	}
	m.mu.Unlock()

	logger.Info().Msg("starting sink loop")
	go sink.loop(sinkCtx, &logger)
	return sink
}

// StopSession cancels every sink of sessionID. Their counters stay readable through Stats.
func (m *SinkManager) StopSession(sessionID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sinks[sessionID] {
		s.state.Store(int32(SinkStateStopped))
		s.cancel()
	}
}

// SetMuted stops or resumes counting packets of kind, for running and future sinks.
func (m *SinkManager) SetMuted(kind webrtc.RTPCodecType, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted[kind] = muted
	for _, bySession := range m.sinks {
		for _, s := range bySession {
			if s.Src.Kind() != kind {
				continue
			}
			if muted {
				s.Mute()
			} else {
				s.Unmute()
			}
		}
	}
}

func (m *SinkManager) Muted(kind webrtc.RTPCodecType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muted[kind]
}

func (m *SinkManager) Stats() []SinkStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SinkStats
	for sid, bySession := range m.sinks {
		for _, s := range bySession {
			out = append(out, SinkStats{
				Session: sid,
				TrackID: s.Src.ID(),
				Kind:    s.Src.Kind().String(),
				Packets: s.Packets(),
				Bytes:   s.Bytes(),
				LastSeq: s.LastSeq(),
				Muted:   s.GetState() == SinkStateMuted,
				Stopped: s.GetState() == SinkStateStopped,
			})
		}
	}
	return out
}
