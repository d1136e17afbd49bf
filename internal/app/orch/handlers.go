package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/duocall/internal/app/session"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func (o *Orchestrator) route(ctx context.Context, env core.Envelope) error {
	if err := env.Validate(); err != nil {
		return &core.NegotiationError{Op: "deliver", Kind: core.ErrUnexpectedMessage, Cause: err}
	}
	if env.Room != "" && env.Room != o.membership.Room {
		return core.Unexpected(string(env.Type), "room %s", env.Room)
	}
	switch env.Type {
	case core.TypePeerJoined:
		return o.onPeerJoined(ctx, env)
	case core.TypePeerLeft:
		return o.onPeerLeft(env)
	case core.TypeOffer:
		return o.onOfferReceived(ctx, env)
	case core.TypeAnswer:
		return o.onAnswerReceived(ctx, env)
	case core.TypeCandidate:
		return o.onCandidateReceived(env)
	case core.TypeError:
		return o.onRelayError(env)
	case core.TypePong:
		return nil
	default:
		return core.Unexpected("deliver", "type %s", env.Type)
	}
}

func (o *Orchestrator) handleJoin(ctx context.Context) error {
	if o.joined {
		return nil
	}
	o.joined = true
	if err := o.send(ctx, core.JoinRoom(o.membership)); err != nil {
		o.joined = false
		return err
	}
	o.logger.Info().Msg("joined")
	return nil
}

// onRelayError undoes a local join the relay refused.
func (o *Orchestrator) onRelayError(env core.Envelope) error {
	if !o.joined || !core.IsJoinRejection(env.Error) {
		return fmt.Errorf("%w: %s", ErrRelayRejected, env.Error)
	}
	o.supersede("join rejected")
	o.joined = false
	o.setRoster(nil)
	o.logger.Warn().Str("code", env.Error).Msg("join rejected by relay")
	return fmt.Errorf("%w: %w: %s", ErrRelayRejected, ErrJoinRejected, env.Error)
}

func (o *Orchestrator) handleEndCall(ctx context.Context) error {
	o.supersede("end call")
	if !o.joined {
		return nil
	}
	o.joined = false
	o.setRoster(nil)
	o.logger.Info().Msg("left")
	return o.send(ctx, core.LeaveRoom(o.membership))
}

// onPeerJoined makes the pre-existing occupant the offerer.
func (o *Orchestrator) onPeerJoined(ctx context.Context, env core.Envelope) error {
	o.setRoster(env.Roster)
	if o.membership.IsSelf(env.From) {
		return nil
	}
	if !o.joined {
		return core.Unexpected("peer joined", "%s joined before local join", env.From)
	}
	s, err := o.newSession(ctx)
	if err != nil {
		return err
	}
	offer, err := s.StartOffer(ctx)
	if err != nil {
		o.drop(s)
		return err
	}
	o.notify(s)
	o.logger.Info().Str("peer", string(env.From)).Str("session", s.ID()).Msg("sending offer")
	return o.send(ctx, core.Offer(o.membership, offer))
}

func (o *Orchestrator) onPeerLeft(env core.Envelope) error {
	o.setRoster(env.Roster)
	if o.membership.IsSelf(env.From) {
		o.joined = false
	}
	o.supersede("peer left")
	return nil
}

func (o *Orchestrator) onOfferReceived(ctx context.Context, env core.Envelope) error {
	if o.membership.IsSelf(env.From) {
		return nil
	}
	if !o.joined {
		return core.Unexpected("offer", "from %s before local join", env.From)
	}
	if cur := o.live(); cur != nil && cur.State() == session.StateNegotiatingAsOfferer && o.membership.Self.Precedes(env.From) {
		return core.Unexpected("offer", "glare with %s, keeping offerer role", env.From)
	}
	s, err := o.newSession(ctx)
	if err != nil {
		return err
	}
	if err := s.ApplyOffer(ctx, *env.Description); err != nil {
		o.drop(s)
		return err
	}
	o.notify(s)
	o.flush(s)
	answer, err := s.CreateAnswer(ctx)
	if err != nil {
		o.drop(s)
		return err
	}
	o.notify(s)
	o.logger.Info().Str("peer", string(env.From)).Str("session", s.ID()).Msg("sending answer")
	return o.send(ctx, core.Answer(o.membership, answer))
}

func (o *Orchestrator) onAnswerReceived(ctx context.Context, env core.Envelope) error {
	if o.membership.IsSelf(env.From) {
		return nil
	}
	cur := o.live()
	if cur == nil || cur.State() != session.StateNegotiatingAsOfferer {
		return core.Unexpected("answer", "from %s with no offer outstanding", env.From)
	}
	if err := cur.AcceptAnswer(ctx, *env.Description); err != nil {
		if core.IsFatal(err) {
			o.drop(cur)
		}
		return err
	}
	o.notify(cur)
	o.flush(cur)
	return nil
}

func (o *Orchestrator) onCandidateReceived(env core.Envelope) error {
	if o.membership.IsSelf(env.From) {
		return nil
	}
	cur := o.live()
	if cur == nil {
		return core.Unexpected("candidate", "no live session")
	}
	if cur.HasRemoteDescription() {
		return cur.AddRemoteCandidate(*env.Candidate)
	}
	o.buffer.Enqueue(cur.ID(), *env.Candidate)
	return nil
}

func (o *Orchestrator) onLocalCandidate(ctx context.Context, sessionID string, c webrtc.ICECandidateInit) error {
	if !o.isCurrent(sessionID) {
		return core.Unexpected("local candidate", "stale session %s", sessionID)
	}
	return o.send(ctx, core.Candidate(o.membership, c))
}

func (o *Orchestrator) onRemoteTrack(sessionID string, t core.RemoteTrack) error {
	if !o.isCurrent(sessionID) {
		return core.Unexpected("remote track", "stale session %s", sessionID)
	}
	if err := o.current.AddRemoteTrack(t); err != nil {
		return err
	}
	o.logger.Info().Str("session", sessionID).Str("kind", t.Kind().String()).Str("track_id", t.ID()).Msg("remote track")
	o.observer.RemoteTrackArrived(sessionID, t)
	return nil
}

func (o *Orchestrator) onConnectionClosed(sessionID string) error {
	if !o.isCurrent(sessionID) {
		return nil
	}
	o.supersede("connection lost")
	return nil
}

func (o *Orchestrator) handleReplaceTrack(track webrtc.TrackLocal, kind webrtc.RTPCodecType) error {
	if o.media == nil {
		return ErrNoMediaSource
	}
	if _, err := o.media.ReplaceTrack(kind, track); err != nil {
		return err
	}
	cur := o.live()
	if cur == nil {
		return nil
	}
	return cur.ReplaceTrack(kind, track)
}

// newSession supersedes the current session and opens a fresh one.
func (o *Orchestrator) newSession(ctx context.Context) (*session.Session, error) {
	o.supersede("superseded")

	conn, err := o.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	id := conn.ID()
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		o.post("local candidate", func(ctx context.Context) error {
			return o.onLocalCandidate(ctx, id, c)
		})
	})
	conn.OnTrack(func(t core.RemoteTrack) {
		o.post("remote track", func(context.Context) error {
			return o.onRemoteTrack(id, t)
		})
	})
	conn.OnClosed(func() {
		o.post("connection closed", func(context.Context) error {
			return o.onConnectionClosed(id)
		})
	})

	var tracks []webrtc.TrackLocal
	if o.media != nil {
		tracks = o.media.CurrentTracks()
	}
	s, err := session.New(conn, tracks)
	if err != nil {
		return nil, err
	}
	o.current = s
	o.notify(s)
	return s, nil
}

// supersede closes the current session and discards its buffered candidates.
func (o *Orchestrator) supersede(reason string) {
	s := o.current
	if s == nil {
		return
	}
	o.current = nil
	if err := s.Close(); err != nil {
		o.logger.Warn().Err(err).Str("session", s.ID()).Msg("close session")
	}
	dropped := o.buffer.Discard(s.ID())
	o.notify(s)
	o.logger.Info().Str("session", s.ID()).Str("reason", reason).Int("dropped_candidates", dropped).Msg("session closed")
}

// drop discards a session whose negotiation failed.
func (o *Orchestrator) drop(s *session.Session) {
	if o.current == s {
		o.supersede("negotiation failed")
		return
	}
	_ = s.Close()
	o.buffer.Discard(s.ID())
}

func (o *Orchestrator) flush(s *session.Session) {
	n, err := o.buffer.Flush(s.ID(), s.AddRemoteCandidate)
	if n > 0 || err != nil {
		o.logger.Debug().Err(err).Str("session", s.ID()).Int("applied", n).Msg("flushed buffered candidates")
	}
	if err != nil && errors.Is(err, core.ErrSessionClosed) {
		o.drop(s)
	}
}

func (o *Orchestrator) live() *session.Session {
	if o.current == nil {
		return nil
	}
	if !o.current.State().Live() {
		o.supersede("closed")
		return nil
	}
	return o.current
}

func (o *Orchestrator) isCurrent(sessionID string) bool {
	return o.current != nil && o.current.ID() == sessionID && o.current.State().Live()
}

func (o *Orchestrator) notify(s *session.Session) {
	o.observer.SessionStateChanged(s.ID(), s.State())
}

func (o *Orchestrator) setRoster(roster []domain.ParticipantName) {
	o.roster = append([]domain.ParticipantName(nil), roster...)
	o.observer.RosterChanged(o.roster)
}

func (o *Orchestrator) send(ctx context.Context, env core.Envelope) error {
	if err := o.relay.Send(ctx, env); err != nil {
		if errors.Is(err, core.ErrTransportUnavailable) {
			return err
		}
		return core.NewNegotiationError("send "+string(env.Type), core.ErrTransportUnavailable, err)
	}
	return nil
}
