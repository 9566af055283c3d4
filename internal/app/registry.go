package app

import (
	"sync"

	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the node-wide ConnectionRegistry: room code -> membership set.
// Empty membership sets are pruned; room sessions live in RoomManager.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*core.RoomMembers
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[domain.RoomCode]*core.RoomMembers),
	}
}

func (r *Registry) room(code domain.RoomCode) (*core.RoomMembers, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.rooms[code]
	return m, ok
}

// liveRoom returns the membership set for code, creating it or replacing a
// retired one when needed.
func (r *Registry) liveRoom(code domain.RoomCode) *core.RoomMembers {
	if m, ok := r.room(code); ok && !m.Retired() {
		return m
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rooms[code]
	if !ok || m.Retired() {
		m = core.NewRoomMembers(code)
		r.rooms[code] = m
	}
	return m
}

// Register inserts or replaces the slot for (code, p.ID). A replaced handle is
// returned so the caller can close it.
func (r *Registry) Register(code domain.RoomCode, p domain.Participant, conn core.SignalConnection) (core.SignalConnection, bool) {
	for {
		m := r.liveRoom(code)
		prev, replaced, ok := m.Add(p, conn)
		if !ok {
			// retired between lookup and add
			continue
		}
		log.Info().Str("module", "app.registry").Str("room", string(code)).Str("id", string(p.ID)).Bool("replaced", replaced).Msg("registered")
		return prev, replaced
	}
}

// Unregister removes the slot for (code, id) whatever connection it holds.
func (r *Registry) Unregister(code domain.RoomCode, id domain.ParticipantID) bool {
	return r.unregister(code, id, nil)
}

// UnregisterConn removes the slot only while it still holds conn, so the
// teardown of a replaced connection never evicts its successor.
func (r *Registry) UnregisterConn(code domain.RoomCode, id domain.ParticipantID, conn core.SignalConnection) bool {
	return r.unregister(code, id, conn)
}

func (r *Registry) unregister(code domain.RoomCode, id domain.ParticipantID, conn core.SignalConnection) bool {
	m, ok := r.room(code)
	if !ok {
		return false
	}
	removed, retired := m.Remove(id, conn)
	if retired {
		r.mu.Lock()
		if r.rooms[code] == m {
			delete(r.rooms, code)
			log.Info().Str("module", "app.registry").Str("room", string(code)).Msg("membership pruned")
		}
		r.mu.Unlock()
	}
	if removed {
		log.Info().Str("module", "app.registry").Str("room", string(code)).Str("id", string(id)).Msg("unregistered")
	}
	return removed
}

// Snapshot returns a point-in-time copy of the room's membership in join order.
func (r *Registry) Snapshot(code domain.RoomCode) []core.ParticipantDTO {
	m, ok := r.room(code)
	if !ok {
		return []core.ParticipantDTO{}
	}
	return m.Snapshot()
}

func (r *Registry) Lookup(code domain.RoomCode, id domain.ParticipantID) (domain.Participant, core.SignalConnection, bool) {
	m, ok := r.room(code)
	if !ok {
		return domain.Participant{}, nil, false
	}
	return m.Lookup(id)
}

func (r *Registry) MemberCount(code domain.RoomCode) int {
	m, ok := r.room(code)
	if !ok {
		return 0
	}
	return m.Count()
}

// SendTo delivers data to id's current handle. found is false when id is not in the room.
func (r *Registry) SendTo(code domain.RoomCode, id domain.ParticipantID, data core.Frame) (core.PublishResult, bool) {
	m, ok := r.room(code)
	if !ok {
		return core.PublishResult{}, false
	}
	return m.SendTo(id, data)
}

// Broadcast delivers data to every current member of the room.
func (r *Registry) Broadcast(code domain.RoomCode, data core.Frame) core.PublishResult {
	m, ok := r.room(code)
	if !ok {
		return core.PublishResult{}
	}
	return m.Broadcast(data)
}

// BroadcastSnapshot builds a frame from the current membership and delivers it
// to exactly that membership.
func (r *Registry) BroadcastSnapshot(code domain.RoomCode, build func([]core.ParticipantDTO) (core.Frame, error)) (core.PublishResult, error) {
	m, ok := r.room(code)
	if !ok {
		return core.PublishResult{}, nil
	}
	return m.BroadcastSnapshot(build)
}

// OccupiedRooms counts rooms with at least one registered connection.
func (r *Registry) OccupiedRooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.rooms {
		if m.Count() > 0 {
			n++
		}
	}
	return n
}

// ConnectionCount counts registered connections across all rooms.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.rooms {
		n += m.Count()
	}
	return n
}
