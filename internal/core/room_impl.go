package core

import (
	"sync"

	"github.com/dkeye/duocall/internal/domain"
	"github.com/rs/zerolog/log"
)

// DefaultRoomCapacity matches a two-party call.
const DefaultRoomCapacity = 2

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room     *domain.Room
	capacity int

	mu     sync.RWMutex
	byConn map[ConnID]MemberSession
	byName map[domain.ParticipantName]ConnID
	order  []ConnID
}

func NewRoomService(room *domain.Room, capacity int) RoomService {
	if capacity <= 0 {
		capacity = DefaultRoomCapacity
	}
	return &roomImpl{
		room:     room,
		capacity: capacity,
		byConn:   make(map[ConnID]MemberSession),
		byName:   make(map[domain.ParticipantName]ConnID),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }
func (r *roomImpl) Capacity() int      { return r.capacity }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) AddMember(ms MemberSession) error {
	name := ms.Meta().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[ms.ID()]; ok {
		return nil
	}
	if _, taken := r.byName[name]; taken {
		return ErrNameTaken
	}
	if len(r.byConn) >= r.capacity {
		return ErrRoomFull
	}
	r.byConn[ms.ID()] = ms
	r.byName[name] = ms.ID()
	r.order = append(r.order, ms.ID())
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("conn", string(ms.ID())).Str("name", string(name)).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(id ConnID) (MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.byConn[id]
	if !ok {
		return nil, false
	}
	delete(r.byName, ms.Meta().Name)
	delete(r.byConn, id)
	for i, c := range r.order {
		if c == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("conn", string(id)).Msg("member removed")
	return ms, true
}

func (r *roomImpl) Broadcast(from ConnID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, id := range r.order {
		if id == from {
			continue
		}
		m := r.byConn[id]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Roster() []domain.ParticipantName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantName, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byConn[id].Meta().Name)
	}
	return out
}
