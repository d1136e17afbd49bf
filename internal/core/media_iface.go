package core

import (
	"context"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// MediaConnection is the connectivity primitive one Session drives.
type MediaConnection interface {
	ID() string
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(ctx context.Context, sd webrtc.SessionDescription) error
	SetRemoteDescription(ctx context.Context, sd webrtc.SessionDescription) error
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// AddLocalTrack binds a local track to a new sender.
	AddLocalTrack(track webrtc.TrackLocal) error
	// ReplaceTrack swaps the track of the sender carrying kind without renegotiation.
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback invoked when a new remote track arrives.
	OnTrack(func(RemoteTrack))
	// OnClosed sets a callback for connectivity failure or close.
	OnClosed(func())
	Close() error
}

// RemoteTrack is the read side of an incoming media track.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// ConnectionFactory opens a fresh MediaConnection for a new Session.
type ConnectionFactory func(ctx context.Context) (MediaConnection, error)

// MediaSource provides the outgoing tracks a new Session is seeded with.
type MediaSource interface {
	CurrentTracks() []webrtc.TrackLocal
	// ReplaceTrack swaps the registered track of kind and returns the previous one.
	ReplaceTrack(kind webrtc.RTPCodecType, track webrtc.TrackLocal) (webrtc.TrackLocal, error)
}
