package app

import (
	"sort"
	"sync"

	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
)

type RoomManagerImpl struct {
	capacity int

	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager(capacity int) core.RoomManager {
	return &RoomManagerImpl{capacity: capacity, rooms: make(map[domain.RoomID]core.RoomService)}
}

func (f *RoomManagerImpl) Enter(id domain.RoomID, ms core.MemberSession) (core.RoomService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		room = core.NewRoomService(&domain.Room{ID: id}, f.capacity)
	}
	if err := room.AddMember(ms); err != nil {
		return nil, err
	}
	f.rooms[id] = room
	return room, nil
}

func (f *RoomManagerImpl) Exit(id domain.RoomID, conn core.ConnID) (core.RoomService, []domain.ParticipantName, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return nil, nil, false
	}
	room.RemoveMember(conn)
	roster := room.Roster()
	if len(roster) == 0 {
		delete(f.rooms, id)
	}
	return room, roster, true
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount(), Capacity: r.Capacity()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
