package app

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/quietrooms/node/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrRoomNotFound = errors.New("room not found on this node")

// StartOptions carries the optional parameters of a start request.
// Nil fields keep the manager defaults.
type StartOptions struct {
	Title           *string
	MaxParticipants *int
}

// RoomManager is the RoomLifecycleManager: it owns room sessions, not membership.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomCode]*domain.Room

	defaultMaxParticipants int
	now                    func() time.Time
}

func NewRoomManager(defaultMaxParticipants int) *RoomManager {
	if defaultMaxParticipants <= 0 {
		defaultMaxParticipants = domain.DefaultMaxParticipants
	}
	return &RoomManager{
		rooms:                  make(map[domain.RoomCode]*domain.Room),
		defaultMaxParticipants: defaultMaxParticipants,
		now:                    time.Now,
	}
}

func (m *RoomManager) newRoom(code domain.RoomCode, opts StartOptions) *domain.Room {
	room := &domain.Room{
		Code:            code,
		MaxParticipants: m.defaultMaxParticipants,
		CreatedAt:       m.now().UTC(),
		Active:          true,
	}
	if opts.Title != nil {
		room.Title = *opts.Title
	}
	if opts.MaxParticipants != nil && *opts.MaxParticipants > 0 {
		room.MaxParticipants = *opts.MaxParticipants
	}
	return room
}

// Start creates the session for code, or reactivates an existing one and
// returns it otherwise unchanged.
func (m *RoomManager) Start(code domain.RoomCode, opts StartOptions) (domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[code]; ok {
		room.Active = true
		log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room reactivated")
		return *room, false
	}
	room := m.newRoom(code, opts)
	m.rooms[code] = room
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Int("max_participants", room.MaxParticipants).Msg("room started")
	return *room, true
}

// Ensure returns the session for code, creating it with defaults on first
// join. The active flag of an existing session is left alone.
func (m *RoomManager) Ensure(code domain.RoomCode) domain.Room {
	m.mu.RLock()
	room, ok := m.rooms[code]
	if ok {
		out := *room
		m.mu.RUnlock()
		return out
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[code]; ok {
		return *room
	}
	room = m.newRoom(code, StartOptions{})
	m.rooms[code] = room
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room created on join")
	return *room
}

// Stop marks the session inactive. Connected participants stay connected.
func (m *RoomManager) Stop(code domain.RoomCode) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[code]
	if !ok {
		return domain.Room{}, ErrRoomNotFound
	}
	room.Active = false
	log.Info().Str("module", "app.rooms").Str("room", string(code)).Msg("room stopped")
	return *room, nil
}

func (m *RoomManager) Get(code domain.RoomCode) (domain.Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[code]
	if !ok {
		return domain.Room{}, false
	}
	return *room, true
}

// List returns copies of every known session ordered by creation time.
func (m *RoomManager) List() []domain.Room {
	m.mu.RLock()
	out := make([]domain.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, *r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out
}
