package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/duocall/internal/adapters/rtc"
	"github.com/dkeye/duocall/internal/adapters/signal"
	"github.com/dkeye/duocall/internal/app"
	"github.com/dkeye/duocall/internal/app/media"
	"github.com/dkeye/duocall/internal/app/orch"
	"github.com/dkeye/duocall/internal/app/session"
	"github.com/dkeye/duocall/internal/config"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel: "debug",
		Server: config.ServerConfig{
			Mode:         gin.TestMode,
			Port:         8080,
			ReadLimit:    65536,
			PingPeriod:   time.Second,
			Secret:       "test-secret",
			RoomCapacity: 2,
			JoinLimit:    5,
			JoinInterval: time.Second,
			SendQueue:    32,
		},
	}
}

func startServer(t *testing.T) (*httptest.Server, *app.Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	hub := app.NewHub(2)
	srv := httptest.NewServer(SetupRouter(ctx, testConfig(), hub))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
}

type inbox struct {
	mu   sync.Mutex
	envs []core.Envelope
}

func (i *inbox) add(env core.Envelope) {
	i.mu.Lock()
	i.envs = append(i.envs, env)
	i.mu.Unlock()
}

func (i *inbox) has(t core.MessageType, from domain.ParticipantName) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range i.envs {
		if e.Type == t && (from == "" || e.From == from) {
			return true
		}
	}
	return false
}

func (i *inbox) errorCode() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, e := range i.envs {
		if e.Type == core.TypeError {
			return e.Error
		}
	}
	return ""
}

func dial(t *testing.T, url string) (*signal.Client, *inbox) {
	t.Helper()
	box := &inbox{}
	c, err := signal.Dial(context.Background(), url, box.add)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, box
}

func TestHealthzSetsSessionCookie(t *testing.T) {
	srv, _, _ := startServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "DuocallSessions" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRelayOverWebsocket(t *testing.T) {
	srv, _, url := startServer(t)
	ctx := context.Background()

	alice, aliceBox := dial(t, url)
	bob, bobBox := dial(t, url)
	carol, carolBox := dial(t, url)

	require.NoError(t, alice.Send(ctx, core.JoinRoom(domain.Membership{Room: "X", Self: "alice"})))
	require.Eventually(t, func() bool { return aliceBox.has(core.TypePeerJoined, "alice") }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, bob.Send(ctx, core.JoinRoom(domain.Membership{Room: "X", Self: "bob"})))
	require.Eventually(t, func() bool {
		return aliceBox.has(core.TypePeerJoined, "bob") && bobBox.has(core.TypePeerJoined, "bob")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, carol.Send(ctx, core.JoinRoom(domain.Membership{Room: "X", Self: "carol"})))
	require.Eventually(t, func() bool { return carolBox.errorCode() == "room_full" }, 2*time.Second, 10*time.Millisecond)

	offer := core.Offer(domain.Membership{Room: "X", Self: "spoof"}, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.NoError(t, alice.Send(ctx, offer))
	require.Eventually(t, func() bool { return bobBox.has(core.TypeOffer, "alice") }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, aliceBox.has(core.TypeOffer, ""))

	resp, err := http.Get(srv.URL + "/api/rooms/X/members")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Members []domain.ParticipantName `json:"members"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []domain.ParticipantName{"alice", "bob"}, body.Members)

	bob.Close()
	require.Eventually(t, func() bool { return aliceBox.has(core.TypePeerLeft, "bob") }, 2*time.Second, 10*time.Millisecond)

	resp2, err := http.Get(srv.URL + "/api/rooms/nowhere/members")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

// newPeer wires a real pion-backed orchestrator to the relay.
func newPeer(t *testing.T, url string, name domain.ParticipantName) *orch.Orchestrator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	mic, err := media.NewSyntheticTrack(media.SourceMicrophone, string(name))
	require.NoError(t, err)

	var o *orch.Orchestrator
	ready := make(chan struct{})
	client, err := signal.Dial(ctx, url, func(env core.Envelope) {
		<-ready
		_ = o.Deliver(ctx, env)
	})
	require.NoError(t, err)

	o, err = orch.New(orch.Options{
		Membership: domain.Membership{Room: "call", Self: name},
		Relay:      client,
		Media:      media.NewRegistry(mic),
		Dial:       rtc.Dialer(webrtc.Configuration{}),
	})
	require.NoError(t, err)
	close(ready)
	go func() { _ = o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-o.Done()
		client.Close()
	})
	return o
}

func TestTwoPeersNegotiateThroughRelay(t *testing.T) {
	_, _, url := startServer(t)
	a := newPeer(t, url, "A")
	b := newPeer(t, url, "B")

	require.NoError(t, a.Join(context.Background()))
	require.Eventually(t, func() bool { return len(a.Snapshot().Roster) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Join(context.Background()))

	require.Eventually(t, func() bool {
		sa, sb := a.Snapshot(), b.Snapshot()
		return sa.SessionID != "" && sa.State == session.StateConnected &&
			sb.SessionID != "" && sb.State == session.StateConnected
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []domain.ParticipantName{"A", "B"}, a.Snapshot().Roster)
}
