package core

import (
	"github.com/dkeye/duocall/internal/domain"
)

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// RoomService is the core-facing API of a relay room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	Capacity() int
	MemberCount() int
	// Roster returns member names in join order.
	Roster() []domain.ParticipantName

	AddMember(ms MemberSession) error
	RemoveMember(id ConnID) (MemberSession, bool)
	// Broadcast sends to every member except from. An empty from reaches everyone.
	Broadcast(from ConnID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
	Capacity    int           `json:"capacity"`
}

// RoomManager owns room lifetime. Enter and Exit are atomic with respect to
// room creation and removal, so a member never sits in a room the manager dropped.
type RoomManager interface {
	// Enter adds ms to room id, creating the room if needed.
	Enter(id domain.RoomID, ms MemberSession) (RoomService, error)
	// Exit removes conn from room id and drops the room once empty.
	// It returns the remaining roster; ok is false when the room does not exist.
	Exit(id domain.RoomID, conn ConnID) (room RoomService, roster []domain.ParticipantName, ok bool)
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
}
