package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownConn   = errors.New("unknown connection")
	ErrNotRelayable  = errors.New("message type is not relayed")
	ErrAlreadyJoined = errors.New("already joined another room")
)

// Hub relays negotiation envelopes between the members of a room.
type Hub struct {
	Registry *Registry
	Rooms    core.RoomManager
	Policy   Policy
}

func NewHub(capacity int) *Hub {
	return &Hub{
		Registry: NewRegistry(),
		Rooms:    NewRoomManager(capacity),
		Policy:   SimplePolicy{},
	}
}

// Connect registers a transport before it joins any room.
func (h *Hub) Connect(id core.ConnID, conn core.SignalConnection, cancel context.CancelFunc) {
	h.Registry.Bind(id, conn, cancel)
}

// Disconnect leaves the current room and forgets the connection.
func (h *Hub) Disconnect(id core.ConnID) {
	h.Leave(id)
	h.Registry.Unbind(id)
}

// Join adds the connection to room under name and announces it to every member, the joiner included.
func (h *Hub) Join(id core.ConnID, roomID domain.RoomID, name domain.ParticipantName) ([]domain.ParticipantName, error) {
	conn, ok := h.Registry.Conn(id)
	if !ok {
		return nil, ErrUnknownConn
	}
	if current, ms, ok := h.Registry.RoomOf(id); ok {
		if current == roomID && ms.Meta().Name == name {
			room, _ := h.Rooms.Get(roomID)
			return room.Roster(), nil
		}
		return nil, ErrAlreadyJoined
	}

	ms := core.NewMemberSession(id, domain.NewMember(name), conn)
	room, err := h.Rooms.Enter(roomID, ms)
	if err != nil {
		return nil, err
	}
	h.Registry.SetRoom(id, roomID, ms)

	roster := room.Roster()
	log.Info().Str("module", "app.hub").Str("conn", string(id)).Str("room", string(roomID)).Str("name", string(name)).Int("members", len(roster)).Msg("joined")
	h.publish(room, "", core.PeerJoined(roomID, name, roster))
	return roster, nil
}

// Leave removes the connection from its room and tells the rest. It reports whether it was in one.
func (h *Hub) Leave(id core.ConnID) bool {
	roomID, ms, ok := h.Registry.RoomOf(id)
	if !ok {
		return false
	}
	h.Registry.ClearRoom(id)
	room, roster, ok := h.Rooms.Exit(roomID, id)
	if !ok {
		return true
	}
	log.Info().Str("module", "app.hub").Str("conn", string(id)).Str("room", string(roomID)).Int("members", len(roster)).Msg("left")
	if len(roster) == 0 {
		return true
	}
	h.publish(room, id, core.PeerLeft(roomID, ms.Meta().Name, roster))
	return true
}

// Forward stamps env with the sender's identity and sends it to the other members.
func (h *Hub) Forward(id core.ConnID, env core.Envelope) error {
	if !env.Type.IsNegotiation() {
		return fmt.Errorf("%w: %s", ErrNotRelayable, env.Type)
	}
	roomID, ms, ok := h.Registry.RoomOf(id)
	if !ok {
		return core.ErrNotJoined
	}
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return core.ErrNotJoined
	}
	env.Room = roomID
	env.From = ms.Meta().Name
	res := h.publish(room, id, env)
	log.Debug().Str("module", "app.hub").Str("conn", string(id)).Str("type", string(env.Type)).Int("sent_to", res.SendTo).Msg("forwarded")
	return nil
}

func (h *Hub) Roster(roomID domain.RoomID) ([]domain.ParticipantName, bool) {
	room, ok := h.Rooms.Get(roomID)
	if !ok {
		return nil, false
	}
	return room.Roster(), true
}

func (h *Hub) publish(room core.RoomService, from core.ConnID, env core.Envelope) core.PublishResult {
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("encode envelope")
		return core.PublishResult{}
	}
	res := room.Broadcast(from, frame)
	if h.Policy == nil {
		return res
	}
	for _, slow := range res.Dropped {
		switch h.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "app.hub").Str("conn", string(slow.ID())).Msg("kicking slow member")
			h.kick(slow.ID())
		case DropFrame, NoAction:
		}
	}
	return res
}

func (h *Hub) kick(id core.ConnID) {
	h.Leave(id)
	h.Registry.Cancel(id)
}
