package signal

import (
	"github.com/dkeye/duocall/internal/core"
	"github.com/rs/zerolog/log"
)

// handleNegotiation relays an offer, answer or candidate to the other member of the room.
func (ctl *SignalWSController) handleNegotiation(id core.ConnID, conn *WsSignalConn, env core.Envelope) {
	if err := env.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad negotiation payload")
		ctl.sendError(conn, core.CodeBadPayload)
		return
	}
	if err := ctl.Hub.Forward(id, env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("type", string(env.Type)).Msg("forward failed")
		ctl.sendError(conn, core.CodeNotJoined)
	}
}
