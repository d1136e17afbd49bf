// Package coretest provides in-process doubles of the core collaborator
// interfaces. Two orchestrators can negotiate through them without pion or
// a relay server.
package coretest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dkeye/duocall/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ core.MediaConnection = (*Connection)(nil)
	_ core.RemoteTrack     = (*Track)(nil)
	_ core.RelayChannel    = (*Relay)(nil)
)

var (
	ErrRejected      = errors.New("rejected by fake connection")
	ErrNoSender      = errors.New("no sender for kind")
	ErrRelayDown     = errors.New("relay down")
	ErrConnectionEnd = errors.New("connection closed")
)

var sdpSeq atomic.Int64

// SDP returns a minimal parseable session description body.
func SDP(label string) string {
	return fmt.Sprintf("v=0\r\no=- %d 0 IN IP4 127.0.0.1\r\ns=%s\r\nt=0 0\r\n", sdpSeq.Add(1), label)
}

// BadCandidate is rejected by every Connection.
const BadCandidate = "candidate:bad"

// Connection is a scripted core.MediaConnection.
type Connection struct {
	id string

	// FailRemote makes SetRemoteDescription fail.
	FailRemote bool

	mu       sync.Mutex
	local    *webrtc.SessionDescription
	remote   *webrtc.SessionDescription
	applied  []webrtc.ICECandidateInit
	senders  map[webrtc.RTPCodecType]webrtc.TrackLocal
	replaced []webrtc.TrackLocal
	closed   int
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteTrack)
	onClosed func()
}

func NewConnection() *Connection {
	return &Connection{
		id:      uuid.NewString(),
		senders: make(map[webrtc.RTPCodecType]webrtc.TrackLocal),
	}
}

func (c *Connection) ID() string { return c.id }

func (c *Connection) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	if c.IsClosed() {
		return webrtc.SessionDescription{}, ErrConnectionEnd
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: SDP("offer-" + c.id)}, nil
}

func (c *Connection) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remote == nil {
		return webrtc.SessionDescription{}, errors.New("answer without remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: SDP("answer-" + c.id)}, nil
}

func (c *Connection) SetLocalDescription(_ context.Context, sd webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = &sd
	return nil
}

func (c *Connection) SetRemoteDescription(_ context.Context, sd webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailRemote {
		return ErrRejected
	}
	c.remote = &sd
	return nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.Contains(ci.Candidate, BadCandidate) {
		return ErrRejected
	}
	c.applied = append(c.applied, ci)
	return nil
}

func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.senders[track.Kind()] = track
	return nil
}

func (c *Connection) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.senders[kind]; !ok {
		return ErrNoSender
	}
	c.senders[kind] = track
	c.replaced = append(c.replaced, track)
	return nil
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

// EmitCandidate simulates local ICE gathering.
func (c *Connection) EmitCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

// EmitTrack simulates a remote track arrival.
func (c *Connection) EmitTrack(t core.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// EmitClosed simulates a connectivity failure.
func (c *Connection) EmitClosed() {
	c.mu.Lock()
	fn := c.onClosed
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed > 0
}

func (c *Connection) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) Local() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Connection) Remote() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// Applied returns the remote candidates in application order.
func (c *Connection) Applied() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.applied))
	for _, ci := range c.applied {
		out = append(out, ci.Candidate)
	}
	return out
}

func (c *Connection) Sender(kind webrtc.RTPCodecType) webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.senders[kind]
}

func (c *Connection) Replaced() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), c.replaced...)
}

// Dialer is a core.ConnectionFactory that remembers every connection it opened.
type Dialer struct {
	// Prepare, if set, configures each new connection before it is returned.
	Prepare func(*Connection)
	Err     error

	mu    sync.Mutex
	conns []*Connection
}

func (d *Dialer) Dial(context.Context) (core.MediaConnection, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	c := NewConnection()
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *Dialer) All() []*Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Connection(nil), d.conns...)
}

func (d *Dialer) Last() *Connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Track is a RemoteTrack that replays queued packets, then reports EOF-like closure.
type Track struct {
	TrackID string
	Stream  string
	Codec   webrtc.RTPCodecType

	packets chan *rtp.Packet
}

func NewTrack(id string, kind webrtc.RTPCodecType, packets ...*rtp.Packet) *Track {
	ch := make(chan *rtp.Packet, len(packets))
	for _, p := range packets {
		ch <- p
	}
	close(ch)
	return &Track{TrackID: id, Stream: "stream-" + id, Codec: kind, packets: ch}
}

func (t *Track) ID() string                { return t.TrackID }
func (t *Track) StreamID() string          { return t.Stream }
func (t *Track) Kind() webrtc.RTPCodecType { return t.Codec }

func (t *Track) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	p, ok := <-t.packets
	if !ok {
		return nil, nil, ErrConnectionEnd
	}
	return p, nil, nil
}

// Relay records every envelope sent through it.
type Relay struct {
	mu   sync.Mutex
	sent []core.Envelope
	down bool
	// Forward, if set, receives each envelope after it is recorded.
	Forward func(core.Envelope)
}

func (r *Relay) Send(_ context.Context, env core.Envelope) error {
	r.mu.Lock()
	if r.down {
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", core.ErrTransportUnavailable, ErrRelayDown)
	}
	r.sent = append(r.sent, env)
	fwd := r.Forward
	r.mu.Unlock()
	if fwd != nil {
		fwd(env)
	}
	return nil
}

func (r *Relay) SetDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
}

func (r *Relay) Sent() []core.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Envelope(nil), r.sent...)
}

// SentOf returns the recorded envelopes of type t.
func (r *Relay) SentOf(t core.MessageType) []core.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Envelope
	for _, e := range r.sent {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Relay) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
