package domain

import "time"

// Member is a participant's presence in a relay room.
type Member struct {
	Name     ParticipantName
	JoinedAt time.Time
}

func NewMember(name ParticipantName) *Member {
	return &Member{Name: name, JoinedAt: time.Now()}
}

// Membership pins one local participant to one room for the lifetime of a call.
type Membership struct {
	Room RoomID
	Self ParticipantName
}

func (m Membership) IsSelf(name ParticipantName) bool {
	return m.Self == name
}
