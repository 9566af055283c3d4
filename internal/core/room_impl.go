package core

import (
	"sort"
	"sync"

	"github.com/quietrooms/node/internal/domain"
	"github.com/rs/zerolog/log"
)

type memberSlot struct {
	participant domain.Participant
	conn        SignalConnection
	seq         uint64
}

// RoomMembers is the threadsafe membership set of one room.
// It never closes adapter-owned resources. Once the last member leaves the
// set is retired and refuses further additions; the owner must replace it.
type RoomMembers struct {
	code    domain.RoomCode
	mu      sync.Mutex
	slots   map[domain.ParticipantID]*memberSlot
	nextSeq uint64
	retired bool
}

func NewRoomMembers(code domain.RoomCode) *RoomMembers {
	return &RoomMembers{
		code:  code,
		slots: make(map[domain.ParticipantID]*memberSlot),
	}
}

func (r *RoomMembers) Code() domain.RoomCode { return r.code }

// Add inserts or replaces the slot for p.ID. ok is false when the set is retired.
func (r *RoomMembers) Add(p domain.Participant, conn SignalConnection) (prev SignalConnection, replaced, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.retired {
		return nil, false, false
	}
	if old, exists := r.slots[p.ID]; exists {
		prev, replaced = old.conn, true
	}
	r.nextSeq++
	r.slots[p.ID] = &memberSlot{participant: p, conn: conn, seq: r.nextSeq}
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("id", string(p.ID)).Bool("replaced", replaced).Msg("member added")
	return prev, replaced, true
}

// Remove deletes the slot for id. A non-nil conn restricts removal to the slot
// still holding that connection. retired reports that the set became empty.
func (r *RoomMembers) Remove(id domain.ParticipantID, conn SignalConnection) (removed, retired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[id]
	if !ok || (conn != nil && slot.conn != conn) {
		return false, r.retired
	}
	delete(r.slots, id)
	if len(r.slots) == 0 {
		r.retired = true
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Str("id", string(id)).Msg("member removed")
	return true, r.retired
}

func (r *RoomMembers) Retired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retired
}

func (r *RoomMembers) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

func (r *RoomMembers) Lookup(id domain.ParticipantID) (domain.Participant, SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[id]
	if !ok {
		return domain.Participant{}, nil, false
	}
	return slot.participant, slot.conn, true
}

// Snapshot returns a copy of the membership ordered by join order.
func (r *RoomMembers) Snapshot() []ParticipantDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *RoomMembers) orderedLocked() []*memberSlot {
	ordered := make([]*memberSlot, 0, len(r.slots))
	for _, s := range r.slots {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	return ordered
}

func (r *RoomMembers) snapshotLocked() []ParticipantDTO {
	out := make([]ParticipantDTO, 0, len(r.slots))
	for _, s := range r.orderedLocked() {
		out = append(out, ParticipantDTO{ID: s.participant.ID, Name: s.participant.Name})
	}
	return out
}

// SendTo delivers data to one member. found is false when id is not present.
func (r *RoomMembers) SendTo(id domain.ParticipantID, data Frame) (res PublishResult, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.slots[id]
	if !ok {
		return res, false
	}
	res.record(slot.conn, slot.conn.TrySend(data))
	return res, true
}

// Broadcast delivers data to every member, sender included.
func (r *RoomMembers) Broadcast(data Frame) PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcastLocked(data)
}

// BroadcastSnapshot builds one frame from the current membership and delivers
// it to the same membership without releasing the lock in between.
func (r *RoomMembers) BroadcastSnapshot(build func([]ParticipantDTO) (Frame, error)) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.slots) == 0 {
		return PublishResult{}, nil
	}
	data, err := build(r.snapshotLocked())
	if err != nil {
		return PublishResult{}, err
	}
	return r.broadcastLocked(data), nil
}

func (r *RoomMembers) broadcastLocked(data Frame) PublishResult {
	res := PublishResult{}
	for _, s := range r.slots {
		res.record(s.conn, s.conn.TrySend(data))
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.code)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Int("failed", res.Failed).Msg("broadcast result")
	return res
}
