package rtc

import (
	"context"
	"testing"

	"github.com/dkeye/duocall/internal/config"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrack(t *testing.T, mime, id string) *webrtc.TrackLocalStaticSample {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, "test")
	require.NoError(t, err)
	return tr
}

func TestOfferAnswerExchange(t *testing.T) {
	ctx := context.Background()
	offerer, err := NewWebRTCConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()
	answerer, err := NewWebRTCConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer answerer.Close()

	require.NoError(t, offerer.AddLocalTrack(sampleTrack(t, webrtc.MimeTypeOpus, "mic")))
	require.NoError(t, offerer.AddLocalTrack(sampleTrack(t, webrtc.MimeTypeVP8, "cam")))
	require.NoError(t, answerer.AddLocalTrack(sampleTrack(t, webrtc.MimeTypeOpus, "mic")))

	offerer.OnICECandidate(func(c webrtc.ICECandidateInit) { _ = answerer.AddICECandidate(c) })
	answerer.OnICECandidate(func(c webrtc.ICECandidateInit) { _ = offerer.AddICECandidate(c) })

	offer, err := offerer.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(ctx, offer))
	require.NoError(t, answerer.SetRemoteDescription(ctx, offer))

	answer, err := answerer.CreateAnswer(ctx)
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(ctx, answer))
	require.NoError(t, offerer.SetRemoteDescription(ctx, answer))

	assert.Equal(t, webrtc.SignalingStateStable, offerer.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, answerer.SignalingState())
	assert.NotEqual(t, offerer.ID(), answerer.ID())

	screen := sampleTrack(t, webrtc.MimeTypeVP8, "screen")
	require.NoError(t, offerer.ReplaceTrack(webrtc.RTPCodecTypeVideo, screen))
	assert.Error(t, offerer.ReplaceTrack(webrtc.RTPCodecTypeAudio, screen), "kind mismatch is rejected by the sender")
	assert.ErrorIs(t, answerer.ReplaceTrack(webrtc.RTPCodecTypeVideo, screen), ErrNoSender)
}

func TestRemoteDescriptionRejected(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer c.Close()
	err = c.SetRemoteDescription(context.Background(), webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "garbage"})
	assert.Error(t, err)
}

func TestCloseIsIdempotentAndSilent(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{})
	require.NoError(t, err)
	fired := make(chan struct{}, 1)
	c.OnClosed(func() { fired <- struct{}{} })
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	select {
	case <-fired:
		t.Fatal("OnClosed fired for a local close")
	default:
	}
}

func TestCanceledContext(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer c.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.CreateOffer(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = Dialer(webrtc.Configuration{})(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigFromICE(t *testing.T) {
	assert.Equal(t, DefaultWebRTCConfig(), ConfigFromICE(config.ICEConfig{}))

	cfg := ConfigFromICE(config.ICEConfig{Servers: []config.ICEServer{
		{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "p"},
	}})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
	assert.Equal(t, "p", cfg.ICEServers[0].Credential)
}
