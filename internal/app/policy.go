package app

import (
	"fmt"

	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a consumer whose outbound queue is full.
type Policy interface {
	OnBackPressure(code domain.RoomCode, conn core.SignalConnection) BackpressureAction
}

// DropPolicy drops the frame for the slow consumer only.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomCode, core.SignalConnection) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects the slow consumer.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomCode, core.SignalConnection) BackpressureAction {
	return KickMember
}

func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
