package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	MaxRoomCodeLen         = 64
	DefaultMaxParticipants = 20
)

var ErrInvalidRoomCode = errors.New("invalid room code")

type RoomCode string

// ParseRoomCode validates an externally assigned room code.
func ParseRoomCode(raw string) (RoomCode, error) {
	code := strings.TrimSpace(raw)
	if code == "" || len(code) > MaxRoomCodeLen || strings.ContainsRune(code, '/') {
		return "", ErrInvalidRoomCode
	}
	return RoomCode(code), nil
}

// Room is a room session hosted on this node.
// MaxParticipants is advisory and never enforced on join.
type Room struct {
	Code            RoomCode
	Title           string
	MaxParticipants int
	CreatedAt       time.Time
	Active          bool
}
