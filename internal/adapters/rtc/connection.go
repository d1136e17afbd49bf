package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/duocall/internal/config"
	"github.com/dkeye/duocall/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ core.MediaConnection = (*WebRTCConnection)(nil)

var ErrNoSender = errors.New("no sender for track kind")

type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	id     string
	logger zerolog.Logger

	mu       sync.Mutex
	senders  map[webrtc.RTPCodecType]*webrtc.RTPSender
	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(core.RemoteTrack)
	onClosed func()

	closing atomic.Bool
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// ConfigFromICE builds a pion configuration from configured ICE servers.
func ConfigFromICE(ice config.ICEConfig) webrtc.Configuration {
	if len(ice.Servers) == 0 {
		return DefaultWebRTCConfig()
	}
	cfg := webrtc.Configuration{}
	for _, s := range ice.Servers {
		cfg.ICEServers = append(cfg.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return cfg
}

// Dialer returns a factory opening one PeerConnection per session.
func Dialer(cfg webrtc.Configuration) core.ConnectionFactory {
	return func(ctx context.Context) (core.MediaConnection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewWebRTCConnection(cfg)
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	c := &WebRTCConnection{
		pc:      pc,
		id:      id,
		logger:  log.With().Str("module", "webrtc").Str("conn", id).Logger(),
		senders: make(map[webrtc.RTPCodecType]*webrtc.RTPSender),
	}
	c.start()
	return c, nil
}

func (c *WebRTCConnection) start() {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		if s != webrtc.PeerConnectionStateFailed && s != webrtc.PeerConnectionStateClosed {
			return
		}
		if c.closing.Load() {
			return
		}
		c.mu.Lock()
		fn := c.onClosed
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			c.logger.Debug().Msg("ICE gathering complete")
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(track)
		}
	})
}

func (c *WebRTCConnection) ID() string { return c.id }

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return c.pc.CreateOffer(nil)
}

func (c *WebRTCConnection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return c.pc.CreateAnswer(nil)
}

func (c *WebRTCConnection) SetLocalDescription(ctx context.Context, sd webrtc.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.pc.SetLocalDescription(sd)
}

func (c *WebRTCConnection) SetRemoteDescription(ctx context.Context, sd webrtc.SessionDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(sd)
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches track to a new sender and drains its RTCP.
func (c *WebRTCConnection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders[track.Kind()] = sender
	c.mu.Unlock()

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *WebRTCConnection) ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error {
	c.mu.Lock()
	sender, ok := c.senders[kind]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, kind)
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return err
	}
	c.logger.Info().Str("kind", kind.String()).Str("track_id", track.ID()).Msg("sender track replaced")
	return nil
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// OnClosed fires when the connection fails or is closed by the remote side.
func (c *WebRTCConnection) OnClosed(fn func()) {
	c.mu.Lock()
	c.onClosed = fn
	c.mu.Unlock()
}

// Close is idempotent and does not fire OnClosed.
func (c *WebRTCConnection) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}

func (c *WebRTCConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}
