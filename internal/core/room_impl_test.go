package core

import (
	"errors"
	"testing"

	"github.com/dkeye/duocall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSignal struct {
	frames []Frame
	full   bool
}

func (f *fakeSignal) TrySend(fr Frame) error {
	if f.full {
		return errors.New("full")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func member(id, name string) (MemberSession, *fakeSignal) {
	sig := &fakeSignal{}
	return NewMemberSession(ConnID(id), domain.NewMember(domain.ParticipantName(name)), sig), sig
}

func TestRoomCapacityAndNames(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"}, 0)
	assert.Equal(t, DefaultRoomCapacity, room.Capacity())

	a, _ := member("c1", "alice")
	b, _ := member("c2", "bob")
	dup, _ := member("c3", "alice")
	c, _ := member("c4", "carol")

	require.NoError(t, room.AddMember(a))
	assert.ErrorIs(t, room.AddMember(dup), ErrNameTaken)
	require.NoError(t, room.AddMember(b))
	assert.ErrorIs(t, room.AddMember(c), ErrRoomFull)
	assert.NoError(t, room.AddMember(a), "re-adding the same connection is a no-op")

	assert.Equal(t, []domain.ParticipantName{"alice", "bob"}, room.Roster())

	_, ok := room.RemoveMember("c1")
	assert.True(t, ok)
	_, ok = room.RemoveMember("c1")
	assert.False(t, ok)
	assert.Equal(t, []domain.ParticipantName{"bob"}, room.Roster())
}

func TestRoomBroadcast(t *testing.T) {
	room := NewRoomService(&domain.Room{ID: "r1"}, 2)
	a, sigA := member("c1", "alice")
	b, sigB := member("c2", "bob")
	require.NoError(t, room.AddMember(a))
	require.NoError(t, room.AddMember(b))

	res := room.Broadcast("c1", Frame("x"))
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, sigA.frames)
	assert.Len(t, sigB.frames, 1)

	res = room.Broadcast("", Frame("y"))
	assert.Equal(t, 2, res.SendTo)

	sigB.full = true
	res = room.Broadcast("c1", Frame("z"))
	assert.Equal(t, 0, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, ConnID("c2"), res.Dropped[0].ID())
}
