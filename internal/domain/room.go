package domain

import (
	"errors"
	"strings"
)

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

type RoomID string

type Room struct {
	ID RoomID `json:"id"`
}

func NewRoomID(raw string) (RoomID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(id), nil
}
