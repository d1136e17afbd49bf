package media

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
)

// Opus silence frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// vp8Blank is a tiny VP8 keyframe header followed by padding.
var vp8Blank = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00, 0x00, 0x00}

// Source names a synthetic capture source.
type Source string

const (
	SourceMicrophone Source = "microphone"
	SourceCamera     Source = "camera"
	SourceScreen     Source = "screen"
)

func (s Source) Kind() webrtc.RTPCodecType {
	if s == SourceMicrophone {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// NewSyntheticTrack creates a sample track for src. Headless peers use it in place of capture devices.
func NewSyntheticTrack(src Source, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	if src.Kind() == webrtc.RTPCodecTypeVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	track, err := webrtc.NewTrackLocalStaticSample(capability, string(src), streamID)
	if err != nil {
		return nil, fmt.Errorf("synthetic %s track: %w", src, err)
	}
	return track, nil
}

// Pump writes placeholder samples into track until ctx is done.
func Pump(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	payload, frame := opusSilence, 20*time.Millisecond
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		payload, frame = vp8Blank, 33*time.Millisecond
	}
	logger := log.With().Str("module", "media").Str("track_id", track.ID()).Logger()
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("pump stopped")
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: payload, Duration: frame}); err != nil {
				logger.Warn().Err(err).Msg("write sample")
			}
		}
	}
}
