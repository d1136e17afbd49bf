// Package session drives one offer/answer exchange over a single media connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/duocall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session is one negotiation attempt. It never returns to idle; a failed
// or superseded attempt ends in closed and a new Session takes its place.
type Session struct {
	conn   core.MediaConnection
	logger zerolog.Logger

	mu           sync.RWMutex
	state        State
	local        *webrtc.SessionDescription
	remote       *webrtc.SessionDescription
	localTracks  []webrtc.TrackLocal
	remoteTracks []core.RemoteTrack
}

// New binds tracks to conn and returns an idle session. conn is closed on failure.
func New(conn core.MediaConnection, tracks []webrtc.TrackLocal) (*Session, error) {
	s := &Session{
		conn:   conn,
		logger: log.With().Str("module", "session").Str("session", conn.ID()).Logger(),
	}
	for _, t := range tracks {
		if t == nil {
			continue
		}
		if err := conn.AddLocalTrack(t); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("add local %s track: %w", t.Kind(), err)
		}
		s.localTracks = append(s.localTracks, t)
	}
	s.logger.Debug().Int("tracks", len(s.localTracks)).Msg("session created")
	return s, nil
}

func (s *Session) ID() string { return s.conn.ID() }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) HasRemoteDescription() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote != nil
}

func (s *Session) LocalDescription() *webrtc.SessionDescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.local
}

func (s *Session) RemoteDescription() *webrtc.SessionDescription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remote
}

func (s *Session) LocalTracks() []webrtc.TrackLocal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]webrtc.TrackLocal(nil), s.localTracks...)
}

// StartOffer creates and applies the local offer: idle -> negotiating-as-offerer.
func (s *Session) StartOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	const op = "start offer"
	if err := s.expect(op, StateIdle); err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := s.conn.CreateOffer(ctx)
	if err != nil {
		return webrtc.SessionDescription{}, s.fail(op, err)
	}
	if err := s.conn.SetLocalDescription(ctx, offer); err != nil {
		return webrtc.SessionDescription{}, s.fail(op, err)
	}
	s.transition(StateNegotiatingAsOfferer, func() { s.local = &offer })
	return offer, nil
}

// ApplyOffer sets a remote offer: idle -> negotiating-as-answerer.
func (s *Session) ApplyOffer(ctx context.Context, offer webrtc.SessionDescription) error {
	const op = "apply offer"
	if err := s.expect(op, StateIdle); err != nil {
		return err
	}
	if err := validateDescription(offer, webrtc.SDPTypeOffer); err != nil {
		return s.fail(op, err)
	}
	if err := s.conn.SetRemoteDescription(ctx, offer); err != nil {
		return s.fail(op, err)
	}
	s.transition(StateNegotiatingAsAnswerer, func() { s.remote = &offer })
	return nil
}

// CreateAnswer creates and applies the local answer: negotiating-as-answerer -> connected.
func (s *Session) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	const op = "create answer"
	if err := s.expect(op, StateNegotiatingAsAnswerer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := s.conn.CreateAnswer(ctx)
	if err != nil {
		return webrtc.SessionDescription{}, s.fail(op, err)
	}
	if err := s.conn.SetLocalDescription(ctx, answer); err != nil {
		return webrtc.SessionDescription{}, s.fail(op, err)
	}
	s.transition(StateConnected, func() { s.local = &answer })
	return answer, nil
}

// AcceptAnswer sets the remote answer: negotiating-as-offerer -> connected.
func (s *Session) AcceptAnswer(ctx context.Context, answer webrtc.SessionDescription) error {
	const op = "accept answer"
	if err := s.expect(op, StateNegotiatingAsOfferer); err != nil {
		return err
	}
	if err := validateDescription(answer, webrtc.SDPTypeAnswer); err != nil {
		return s.fail(op, err)
	}
	if err := s.conn.SetRemoteDescription(ctx, answer); err != nil {
		return s.fail(op, err)
	}
	s.transition(StateConnected, func() { s.remote = &answer })
	return nil
}

// AddRemoteCandidate applies c. Failures are non-fatal and leave the session as is.
func (s *Session) AddRemoteCandidate(c webrtc.ICECandidateInit) error {
	const op = "add candidate"
	s.mu.RLock()
	state, hasRemote := s.state, s.remote != nil
	s.mu.RUnlock()
	if state == StateClosed {
		return core.NewNegotiationError(op, core.ErrSessionClosed, nil)
	}
	if !hasRemote {
		return core.Unexpected(op, "no remote description yet")
	}
	if err := s.conn.AddICECandidate(c); err != nil {
		return core.NewNegotiationError(op, core.ErrCandidateApplicationFailed, err)
	}
	return nil
}

// ReplaceTrack swaps the outgoing track of kind in place. State is unchanged.
func (s *Session) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return core.NewNegotiationError("replace track", core.ErrSessionClosed, nil)
	}
	if err := s.conn.ReplaceTrack(kind, track); err != nil {
		return fmt.Errorf("replace %s track: %w", kind, err)
	}
	for i, t := range s.localTracks {
		if t.Kind() == kind {
			s.localTracks[i] = track
			return nil
		}
	}
	s.localTracks = append(s.localTracks, track)
	return nil
}

func (s *Session) AddRemoteTrack(t core.RemoteTrack) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return core.NewNegotiationError("remote track", core.ErrSessionClosed, nil)
	}
	s.remoteTracks = append(s.remoteTracks, t)
	return nil
}

func (s *Session) RemoteTracks() []core.RemoteTrack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.RemoteTrack(nil), s.remoteTracks...)
}

// Close releases the connection. Capture devices stay with the media source.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = StateClosed
	s.localTracks = nil
	s.mu.Unlock()

	s.logger.Info().Str("from", prev.String()).Msg("session closed")
	return s.conn.Close()
}

func (s *Session) expect(op string, want State) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state == StateClosed {
		return core.NewNegotiationError(op, core.ErrSessionClosed, nil)
	}
	if state != want {
		return core.Unexpected(op, "state %s, want %s", state, want)
	}
	return nil
}

func (s *Session) transition(to State, apply func()) {
	s.mu.Lock()
	from := s.state
	if from == StateClosed {
		s.mu.Unlock()
		return
	}
	apply()
	s.state = to
	s.mu.Unlock()
	s.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state change")
}

// fail closes the session after a description error.
func (s *Session) fail(op string, cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		_ = s.Close()
		return core.NewNegotiationError(op, core.ErrSessionClosed, cause)
	}
	if cerr := s.Close(); cerr != nil {
		s.logger.Warn().Err(cerr).Msg("close after failure")
	}
	return core.NewNegotiationError(op, core.ErrInvalidDescription, cause)
}

var errEmptySDP = errors.New("empty sdp")

func validateDescription(sd webrtc.SessionDescription, want webrtc.SDPType) error {
	if sd.Type != want {
		return fmt.Errorf("description type %s, want %s", sd.Type, want)
	}
	if sd.SDP == "" {
		return errEmptySDP
	}
	if _, err := sd.Unmarshal(); err != nil {
		return fmt.Errorf("parse sdp: %w", err)
	}
	return nil
}
