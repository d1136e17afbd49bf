package orch

import (
	"github.com/dkeye/duocall/internal/app/session"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
)

// Observer receives what a call UI would render. Calls come from the
// orchestrator loop and must not block.
type Observer interface {
	RosterChanged(roster []domain.ParticipantName)
	RemoteTrackArrived(sessionID string, track core.RemoteTrack)
	SessionStateChanged(sessionID string, state session.State)
}

type NopObserver struct{}

func (NopObserver) RosterChanged([]domain.ParticipantName)      {}
func (NopObserver) RemoteTrackArrived(string, core.RemoteTrack) {}
func (NopObserver) SessionStateChanged(string, session.State)   {}
