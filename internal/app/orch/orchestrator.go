// Package orch serializes relay and connection events for one room membership
// and turns them into session transitions and outbound envelopes.
package orch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/duocall/internal/app/session"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultInboxSize = 64

var (
	ErrStopped        = errors.New("orchestrator stopped")
	ErrAlreadyRunning = errors.New("orchestrator already running")
	ErrNoMediaSource  = errors.New("no media source configured")
	ErrRelayRejected  = errors.New("relay rejected request")
	ErrJoinRejected   = errors.New("join rejected")
)

type Options struct {
	Membership domain.Membership
	Relay      core.RelayChannel
	Media      core.MediaSource
	Dial       core.ConnectionFactory
	Observer   Observer
	InboxSize  int
}

type event struct {
	name  string
	run   func(ctx context.Context) error
	reply chan error
}

// Snapshot is a read-only view of the orchestrator, safe from any goroutine.
type Snapshot struct {
	Joined    bool
	SessionID string
	State     session.State
	HasRemote bool
	Buffered  int
	Roster    []domain.ParticipantName
}

// Orchestrator is the room session context of one local participant.
// Everything below the inbox is owned by the Run goroutine.
type Orchestrator struct {
	membership domain.Membership
	relay      core.RelayChannel
	media      core.MediaSource
	dial       core.ConnectionFactory
	observer   Observer
	logger     zerolog.Logger

	inbox   chan event
	done    chan struct{}
	running atomic.Bool

	current *session.Session
	buffer  *session.CandidateBuffer
	joined  bool
	roster  []domain.ParticipantName

	mu   sync.RWMutex
	snap Snapshot
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Relay == nil {
		return nil, errors.New("orch: relay channel is required")
	}
	if opts.Dial == nil {
		return nil, errors.New("orch: connection factory is required")
	}
	if opts.Membership.Self == "" || opts.Membership.Room == "" {
		return nil, errors.New("orch: membership needs room and participant")
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}
	return &Orchestrator{
		membership: opts.Membership,
		relay:      opts.Relay,
		media:      opts.Media,
		dial:       opts.Dial,
		observer:   opts.Observer,
		logger: log.With().
			Str("module", "orch").
			Str("room", string(opts.Membership.Room)).
			Str("self", string(opts.Membership.Self)).
			Logger(),
		inbox:  make(chan event, opts.InboxSize),
		done:   make(chan struct{}),
		buffer: session.NewCandidateBuffer(),
	}, nil
}

func (o *Orchestrator) Membership() domain.Membership { return o.membership }

// Run consumes the inbox until ctx is done. The live session is closed on exit.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		o.supersede("shutdown")
		o.refresh()
		close(o.done)
	}()

	o.logger.Info().Msg("orchestrator started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("orchestrator stopped")
			return nil
		case ev := <-o.inbox:
			err := o.safeRun(ctx, ev)
			o.report(ev.name, err)
			o.refresh()
			if ev.reply != nil {
				ev.reply <- err
			}
		}
	}
}

func (o *Orchestrator) safeRun(ctx context.Context, ev event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", ev.name, r)
		}
	}()
	return ev.run(ctx)
}

// Done is closed once Run has returned.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.snap
	s.Roster = append([]domain.ParticipantName(nil), o.snap.Roster...)
	return s
}

// Join announces the local participant to the room.
func (o *Orchestrator) Join(ctx context.Context) error {
	return o.submit(ctx, "join", o.handleJoin)
}

// Deliver routes one relay envelope through the inbox and returns its outcome.
func (o *Orchestrator) Deliver(ctx context.Context, env core.Envelope) error {
	return o.submit(ctx, string(env.Type), func(ctx context.Context) error {
		return o.route(ctx, env)
	})
}

// RequestRenegotiation swaps the outgoing track of kind on the registry and the live session.
func (o *Orchestrator) RequestRenegotiation(ctx context.Context, track webrtc.TrackLocal, kind webrtc.RTPCodecType) error {
	return o.submit(ctx, "replace track", func(context.Context) error {
		return o.handleReplaceTrack(track, kind)
	})
}

// EndCall closes the live session and leaves the room.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	return o.submit(ctx, "end call", o.handleEndCall)
}

func (o *Orchestrator) submit(ctx context.Context, name string, run func(context.Context) error) error {
	ev := event{name: name, run: run, reply: make(chan error, 1)}
	select {
	case o.inbox <- ev:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-ev.reply:
		return err
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues a connection callback. It blocks the callback goroutine while the inbox is full.
func (o *Orchestrator) post(name string, run func(context.Context) error) {
	select {
	case o.inbox <- event{name: name, run: run}:
	case <-o.done:
	}
}

func (o *Orchestrator) report(name string, err error) {
	if err == nil {
		return
	}
	l := o.logger
	switch {
	case core.IsFatal(err):
		l.Error().Err(err).Str("event", name).Msg("negotiation abandoned")
	case errors.Is(err, core.ErrUnexpectedMessage):
		l.Debug().Err(err).Str("event", name).Msg("message dropped")
	default:
		l.Warn().Err(err).Str("event", name).Msg("event failed")
	}
}

func (o *Orchestrator) refresh() {
	snap := Snapshot{
		Joined:   o.joined,
		Buffered: o.buffer.Len(),
		Roster:   o.roster,
	}
	if o.current != nil {
		snap.SessionID = o.current.ID()
		snap.State = o.current.State()
		snap.HasRemote = o.current.HasRemoteDescription()
	}
	o.mu.Lock()
	o.snap = snap
	o.mu.Unlock()
}
