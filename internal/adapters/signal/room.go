package signal

import (
	"errors"

	"github.com/dkeye/duocall/internal/app"
	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(id core.ConnID, conn *WsSignalConn, env core.Envelope) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Msg("join rate limited")
		ctl.sendError(conn, core.CodeRateLimited)
		return
	}
	roomID, err := domain.NewRoomID(string(env.Room))
	if err != nil {
		ctl.sendError(conn, core.CodeInvalidRoom)
		return
	}
	name, err := domain.NewParticipantName(string(env.From))
	if err != nil {
		ctl.sendError(conn, core.CodeInvalidName)
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(roomID)).Str("name", string(name)).Msg("join")
	if _, err := ctl.Hub.Join(id, roomID, name); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("join rejected")
		ctl.sendError(conn, joinErrorCode(err))
	}
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(id core.ConnID) {
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("leave")
	ctl.Hub.Leave(id)
}

func joinErrorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomFull):
		return core.CodeRoomFull
	case errors.Is(err, core.ErrNameTaken):
		return core.CodeNameTaken
	case errors.Is(err, app.ErrAlreadyJoined):
		return core.CodeAlreadyJoined
	default:
		return core.CodeJoinFailed
	}
}
