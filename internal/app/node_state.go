package app

import "sync"

// Load is the last sampled resource usage of this node, in percent.
// Nil means not sampled yet.
type Load struct {
	CPU *float64
	Mem *float64
}

// NodeState aggregates room sessions, membership and sampled load. It is the
// single source the HTTP surface and the heartbeat read from.
type NodeState struct {
	Registry *Registry
	Rooms    *RoomManager

	mu   sync.RWMutex
	load Load
}

func NewNodeState(reg *Registry, rooms *RoomManager) *NodeState {
	return &NodeState{Registry: reg, Rooms: rooms}
}

// ActiveRoomsCount is derived from the registry on every call: a room is
// active while at least one connection is registered in it.
func (s *NodeState) ActiveRoomsCount() int {
	return s.Registry.OccupiedRooms()
}

func (s *NodeState) SetLoad(cpu, mem *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load = Load{CPU: copyFloat(cpu), Mem: copyFloat(mem)}
}

func (s *NodeState) Load() Load {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Load{CPU: copyFloat(s.load.CPU), Mem: copyFloat(s.load.Mem)}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
