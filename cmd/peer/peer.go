package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/duocall/internal/adapters/rtc"
	sig "github.com/dkeye/duocall/internal/adapters/signal"
	"github.com/dkeye/duocall/internal/app/media"
	"github.com/dkeye/duocall/internal/app/orch"
	"github.com/dkeye/duocall/internal/app/session"
	"github.com/dkeye/duocall/internal/config"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
)

// logObserver logs orchestrator notifications and drains remote media into sinks.
type logObserver struct {
	ctx    context.Context
	sinks  *media.SinkManager
	logger zerolog.Logger
}

func (o *logObserver) RosterChanged(roster []domain.ParticipantName) {
	names := make([]string, len(roster))
	for i, n := range roster {
		names[i] = n.String()
	}
	o.logger.Info().Strs("roster", names).Msg("roster changed")
}

func (o *logObserver) RemoteTrackArrived(sessionID string, track core.RemoteTrack) {
	o.logger.Info().Str("session", sessionID).Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("remote track")
	o.sinks.Start(o.ctx, sessionID, track)
}

func (o *logObserver) SessionStateChanged(sessionID string, state session.State) {
	o.logger.Info().Str("session", sessionID).Str("state", state.String()).Msg("session state")
	if state == session.StateClosed {
		o.sinks.StopSession(sessionID)
	}
}

func runPeer(ctx context.Context, cfg *config.Config) error {
	logger := log.With().Str("module", "peer").Logger()

	room, err := domain.NewRoomID(cfg.Peer.Room)
	if err != nil {
		return err
	}
	name, err := domain.NewParticipantName(cfg.Peer.Name)
	if err != nil {
		return err
	}
	membership := domain.Membership{Room: room, Self: name}

	mediaCtx, stopMedia := context.WithCancel(ctx)
	defer stopMedia()

	mic, err := media.NewSyntheticTrack(media.SourceMicrophone, name.String())
	if err != nil {
		return err
	}
	go media.Pump(mediaCtx, mic)
	tracks := []webrtc.TrackLocal{mic}

	videos := map[media.Source]*webrtc.TrackLocalStaticSample{}
	if cfg.Peer.Video {
		for _, src := range []media.Source{media.SourceCamera, media.SourceScreen} {
			t, err := media.NewSyntheticTrack(src, name.String())
			if err != nil {
				return err
			}
			go media.Pump(mediaCtx, t)
			videos[src] = t
		}
		tracks = append(tracks, videos[media.SourceCamera])
	}
	registry := media.NewRegistry(tracks...)
	sinks := media.NewSinkManager()

	var client *sig.Client
	relay := core.RelayFunc(func(ctx context.Context, env core.Envelope) error {
		sendCtx, cancel := context.WithTimeout(ctx, cfg.Peer.SendTimeout)
		defer cancel()
		return client.Send(sendCtx, env)
	})

	o, err := orch.New(orch.Options{
		Membership: membership,
		Relay:      relay,
		Media:      registry,
		Dial:       rtc.Dialer(rtc.ConfigFromICE(cfg.ICE)),
		Observer:   &logObserver{ctx: mediaCtx, sinks: sinks, logger: logger},
		InboxSize:  cfg.Peer.InboxSize,
	})
	if err != nil {
		return err
	}

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	rejected := make(chan error, 1)
	client, err = sig.Dial(ctx, cfg.Peer.RelayURL, func(env core.Envelope) {
		err := o.Deliver(runCtx, env)
		switch {
		case err == nil, errors.Is(err, orch.ErrStopped):
		case errors.Is(err, orch.ErrJoinRejected):
			select {
			case rejected <- err:
			default:
			}
		default:
			logger.Warn().Err(err).Str("type", string(env.Type)).Msg("deliver failed")
		}
	})
	if err != nil {
		return err
	}
	defer client.Close()

	go func() {
		if err := o.Run(runCtx); err != nil {
			logger.Error().Err(err).Msg("orchestrator stopped")
		}
	}()

	if err := o.Join(ctx); err != nil {
		return err
	}
	logger.Info().Str("room", string(room)).Str("name", name.String()).Msg("joined")

	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)
	usr2 := make(chan os.Signal, 1)
	signal.Notify(usr2, syscall.SIGUSR2)
	defer signal.Stop(usr2)

	current := media.SourceCamera
	for {
		select {
		case <-usr1:
			if !cfg.Peer.Video {
				logger.Warn().Msg("video disabled, nothing to switch")
				continue
			}
			next := media.SourceScreen
			if current == media.SourceScreen {
				next = media.SourceCamera
			}
			if err := o.RequestRenegotiation(ctx, videos[next], webrtc.RTPCodecTypeVideo); err != nil {
				logger.Warn().Err(err).Str("source", string(next)).Msg("switch failed")
				continue
			}
			current = next
			logger.Info().Str("source", string(current)).Msg("video source switched")
		case <-usr2:
			muted := !sinks.Muted(webrtc.RTPCodecTypeAudio)
			sinks.SetMuted(webrtc.RTPCodecTypeAudio, muted)
			logger.Info().Bool("muted", muted).Msg("remote audio")
		case err := <-rejected:
			stopRun()
			<-o.Done()
			return err
		case <-client.Done():
			stopRun()
			<-o.Done()
			return core.ErrTransportUnavailable
		case <-o.Done():
			return nil
		case <-ctx.Done():
			endCtx, cancel := context.WithTimeout(context.Background(), cfg.Peer.SendTimeout)
			if err := o.EndCall(endCtx); err != nil {
				logger.Warn().Err(err).Msg("end call")
			}
			cancel()
			stopRun()
			<-o.Done()
			for _, st := range sinks.Stats() {
				logger.Info().Str("session", st.Session).Str("kind", st.Kind).Uint64("packets", st.Packets).Uint64("bytes", st.Bytes).Uint16("last_seq", st.LastSeq).Msg("received")
			}
			return nil
		}
	}
}
