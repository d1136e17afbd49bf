package core

import "github.com/dkeye/duocall/internal/domain"

// ConnID identifies one relay client connection.
type ConnID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() ConnID
	Meta() *domain.Member
	Signal() SignalConnection
}
