// Package domain contains call entities without transport or lifecycle logic.
package domain

import (
	"errors"
	"strings"
)

const MaxParticipantNameLen = 36

var (
	ErrNameTooLong = errors.New("participant name too long")
	ErrNameEmpty   = errors.New("participant name empty")
)

// ParticipantName identifies a peer inside a room. It is compared byte-wise.
type ParticipantName string

func NewParticipantName(raw string) (ParticipantName, error) {
	name := strings.TrimSpace(raw)
	if len(name) == 0 {
		return "", ErrNameEmpty
	}
	if len(name) > MaxParticipantNameLen {
		return "", ErrNameTooLong
	}
	return ParticipantName(name), nil
}

// Precedes reports whether n sorts before other. The preceding name owns the offer on glare.
func (n ParticipantName) Precedes(other ParticipantName) bool {
	return n < other
}

func (n ParticipantName) String() string { return string(n) }
