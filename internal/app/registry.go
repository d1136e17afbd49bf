package app

import (
	"context"
	"sync"

	"github.com/dkeye/duocall/internal/core"
	"github.com/dkeye/duocall/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Room    domain.RoomID
	Session core.MemberSession
	Conn    core.SignalConnection
	Cancel  context.CancelFunc
}

// Registry maps relay connections to their transport and room membership.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[core.ConnID]*connEntry)}
}

func (r *Registry) Bind(id core.ConnID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[id]; ok && old.Cancel != nil {
		old.Cancel()
	}
	r.conns[id] = &connEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("bound connection")
}

func (r *Registry) Conn(id core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) Unbind(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("unbound connection")
}

func (r *Registry) RoomOf(id core.ConnID) (domain.RoomID, core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Room == "" {
		return "", nil, false
	}
	return e.Room, e.Session, true
}

func (r *Registry) SetRoom(id core.ConnID, room domain.RoomID, ms core.MemberSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Room, e.Session = room, ms
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("updated room")
	return true
}

func (r *Registry) ClearRoom(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.Room, e.Session = "", nil
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("removed room association")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Cancel(id core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("canceled connection")
	return true
}
