package orch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/duocall/internal/app/media"
	"github.com/dkeye/duocall/internal/app/session"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/core/coretest"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

const room domain.RoomID = "X"

type recorder struct {
	mu      sync.Mutex
	rosters [][]domain.ParticipantName
	tracks  []core.RemoteTrack
	states  []session.State
}

func (r *recorder) RosterChanged(roster []domain.ParticipantName) {
	r.mu.Lock()
	r.rosters = append(r.rosters, roster)
	r.mu.Unlock()
}

func (r *recorder) RemoteTrackArrived(_ string, t core.RemoteTrack) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
}

func (r *recorder) SessionStateChanged(_ string, s session.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) Tracks() []core.RemoteTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.RemoteTrack(nil), r.tracks...)
}

func (r *recorder) LastRoster() []domain.ParticipantName {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rosters) == 0 {
		return nil
	}
	return r.rosters[len(r.rosters)-1]
}

type harness struct {
	o        *Orchestrator
	relay    *coretest.Relay
	dialer   *coretest.Dialer
	observer *recorder
	registry *media.Registry
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, self domain.ParticipantName) *harness {
	t.Helper()
	mic, err := media.NewSyntheticTrack(media.SourceMicrophone, "local")
	require.NoError(t, err)
	cam, err := media.NewSyntheticTrack(media.SourceCamera, "local")
	require.NoError(t, err)

	h := &harness{
		relay:    &coretest.Relay{},
		dialer:   &coretest.Dialer{},
		observer: &recorder{},
		registry: media.NewRegistry(mic, cam),
	}
	h.o, err = New(Options{
		Membership: domain.Membership{Room: room, Self: self},
		Relay:      h.relay,
		Media:      h.registry,
		Dial:       h.dialer.Dial,
		Observer:   h.observer,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { _ = h.o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.o.Done()
	})
	return h
}

func (h *harness) join(t *testing.T) {
	t.Helper()
	require.NoError(t, h.o.Join(context.Background()))
}

func (h *harness) deliver(env core.Envelope) error {
	return h.o.Deliver(context.Background(), env)
}

// sync waits until every previously posted callback event has run.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.deliver(core.Envelope{Type: core.TypePong}))
}

func from(name domain.ParticipantName) domain.Membership {
	return domain.Membership{Room: room, Self: name}
}

func joined(name domain.ParticipantName, roster ...domain.ParticipantName) core.Envelope {
	return core.PeerJoined(room, name, roster)
}

func left(name domain.ParticipantName, roster ...domain.ParticipantName) core.Envelope {
	return core.PeerLeft(room, name, roster)
}

func offerFrom(name domain.ParticipantName) core.Envelope {
	return core.Offer(from(name), webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: coretest.SDP("offer")})
}

func answerFrom(name domain.ParticipantName) core.Envelope {
	return core.Answer(from(name), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: coretest.SDP("answer")})
}

func candidateFrom(name domain.ParticipantName, c string) core.Envelope {
	return core.Candidate(from(name), webrtc.ICECandidateInit{Candidate: c})
}

// memoryHub mimics the relay server for a single room: join echoes reach
// everyone, negotiation messages reach everyone but the sender.
type memoryHub struct {
	t  *testing.T
	mu sync.Mutex

	members   []domain.ParticipantName
	endpoints map[domain.ParticipantName]*endpoint
	sent      map[domain.ParticipantName][]core.MessageType
}

type endpoint struct {
	o     *Orchestrator
	queue chan core.Envelope
}

func newMemoryHub(t *testing.T) *memoryHub {
	return &memoryHub{
		t:         t,
		endpoints: make(map[domain.ParticipantName]*endpoint),
		sent:      make(map[domain.ParticipantName][]core.MessageType),
	}
}

// attach builds an orchestrator for name wired to the hub and starts it.
func (m *memoryHub) attach(name domain.ParticipantName, dialer *coretest.Dialer) *Orchestrator {
	o, err := New(Options{
		Membership: from(name),
		Relay: core.RelayFunc(func(_ context.Context, env core.Envelope) error {
			m.handle(name, env)
			return nil
		}),
		Dial: dialer.Dial,
	})
	require.NoError(m.t, err)

	ep := &endpoint{o: o, queue: make(chan core.Envelope, 256)}
	m.mu.Lock()
	m.endpoints[name] = ep
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = o.Run(ctx) }()
	go func() {
		for {
			select {
			case env := <-ep.queue:
				_ = o.Deliver(ctx, env)
			case <-ctx.Done():
				return
			}
		}
	}()
	m.t.Cleanup(func() {
		cancel()
		<-o.Done()
	})
	return o
}

func (m *memoryHub) handle(sender domain.ParticipantName, env core.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[sender] = append(m.sent[sender], env.Type)
	switch env.Type {
	case core.TypeJoinRoom:
		m.members = append(m.members, sender)
		out := core.PeerJoined(room, sender, append([]domain.ParticipantName(nil), m.members...))
		for _, name := range m.members {
			m.endpoints[name].queue <- out
		}
	case core.TypeLeaveRoom:
		for i, name := range m.members {
			if name == sender {
				m.members = append(m.members[:i], m.members[i+1:]...)
				break
			}
		}
		out := core.PeerLeft(room, sender, append([]domain.ParticipantName(nil), m.members...))
		for _, name := range m.members {
			m.endpoints[name].queue <- out
		}
	default:
		env.From = sender
		env.Room = room
		for _, name := range m.members {
			if name != sender {
				m.endpoints[name].queue <- env
			}
		}
	}
}

func (m *memoryHub) count(sender domain.ParticipantName, t core.MessageType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent[sender] {
		if s == t {
			n++
		}
	}
	return n
}

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)
