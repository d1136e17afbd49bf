package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/duocall/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypePeerJoined MessageType = "peer-joined"
	TypePeerLeft   MessageType = "peer-left"
	TypeOffer      MessageType = "negotiation-offer"
	TypeAnswer     MessageType = "negotiation-answer"
	TypeCandidate  MessageType = "negotiation-candidate"

	TypeJoinRoom  MessageType = "join-room"
	TypeLeaveRoom MessageType = "leave-room"
	TypePing      MessageType = "ping"
	TypePong      MessageType = "pong"
	TypeError     MessageType = "error"
)

// IsNegotiation reports whether t is relayed verbatim between peers.
func (t MessageType) IsNegotiation() bool {
	return t == TypeOffer || t == TypeAnswer || t == TypeCandidate
}

// Envelope is the single relay wire message.
type Envelope struct {
	Type        MessageType                `json:"type"`
	Room        domain.RoomID              `json:"room,omitempty"`
	From        domain.ParticipantName     `json:"participant,omitempty"`
	Roster      []domain.ParticipantName   `json:"roster,omitempty"`
	Description *webrtc.SessionDescription `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

func JoinRoom(m domain.Membership) Envelope {
	return Envelope{Type: TypeJoinRoom, Room: m.Room, From: m.Self}
}

func LeaveRoom(m domain.Membership) Envelope {
	return Envelope{Type: TypeLeaveRoom, Room: m.Room, From: m.Self}
}

func PeerJoined(room domain.RoomID, who domain.ParticipantName, roster []domain.ParticipantName) Envelope {
	return Envelope{Type: TypePeerJoined, Room: room, From: who, Roster: roster}
}

func PeerLeft(room domain.RoomID, who domain.ParticipantName, roster []domain.ParticipantName) Envelope {
	return Envelope{Type: TypePeerLeft, Room: room, From: who, Roster: roster}
}

func Offer(m domain.Membership, sd webrtc.SessionDescription) Envelope {
	return Envelope{Type: TypeOffer, Room: m.Room, From: m.Self, Description: &sd}
}

func Answer(m domain.Membership, sd webrtc.SessionDescription) Envelope {
	return Envelope{Type: TypeAnswer, Room: m.Room, From: m.Self, Description: &sd}
}

func Candidate(m domain.Membership, c webrtc.ICECandidateInit) Envelope {
	return Envelope{Type: TypeCandidate, Room: m.Room, From: m.Self, Candidate: &c}
}

func ErrorEnvelope(msg string) Envelope {
	return Envelope{Type: TypeError, Error: msg}
}

// Error codes carried by TypeError envelopes.
const (
	CodeRoomFull      = "room_full"
	CodeNameTaken     = "name_taken"
	CodeAlreadyJoined = "already_joined"
	CodeJoinFailed    = "join_failed"
	CodeRateLimited   = "rate_limited"
	CodeInvalidRoom   = "invalid_room"
	CodeInvalidName   = "invalid_name"
	CodeBadPayload    = "bad_payload"
	CodeUnknownType   = "unknown_type"
	CodeNotJoined     = "not_joined"
)

// IsJoinRejection reports whether code answers a join-room request.
func IsJoinRejection(code string) bool {
	switch code {
	case CodeRoomFull, CodeNameTaken, CodeAlreadyJoined, CodeJoinFailed,
		CodeRateLimited, CodeInvalidRoom, CodeInvalidName:
		return true
	}
	return false
}

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Validate checks that the payload matches the message type.
func (e Envelope) Validate() error {
	switch e.Type {
	case TypeOffer, TypeAnswer:
		if e.Description == nil {
			return fmt.Errorf("%w: %s without description", ErrMalformedEnvelope, e.Type)
		}
	case TypeCandidate:
		if e.Candidate == nil {
			return fmt.Errorf("%w: candidate without payload", ErrMalformedEnvelope)
		}
	case TypePeerJoined, TypePeerLeft, TypeJoinRoom, TypeLeaveRoom:
	case TypePing, TypePong, TypeError:
		return nil
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEnvelope, e.Type)
	}
	if e.From == "" {
		return fmt.Errorf("%w: %s without participant", ErrMalformedEnvelope, e.Type)
	}
	return nil
}

func (e Envelope) Encode() (Frame, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return env, nil
}
