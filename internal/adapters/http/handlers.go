package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/quietrooms/node/internal/app"
	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	nodeID     string
	state      *app.NodeState
	iceServers []webrtc.ICEServer
	now        func() time.Time
}

type NodeInfo struct {
	NodeID      string    `json:"node_id"`
	ActiveRooms int       `json:"active_rooms"`
	CPULoad     *float64  `json:"cpu_load"`
	MemLoad     *float64  `json:"mem_load"`
	Timestamp   time.Time `json:"timestamp"`
}

// StartRoomRequest is the optional body of POST /rooms/:code/start.
type StartRoomRequest struct {
	Title           *string `json:"title" binding:"omitempty,max=200"`
	MaxParticipants *int    `json:"max_participants" binding:"omitempty,min=1,max=1000"`
}

type RoomOut struct {
	Code            domain.RoomCode `json:"code"`
	Title           *string         `json:"title"`
	MaxParticipants int             `json:"max_participants"`
	CreatedAt       time.Time       `json:"created_at"`
	IsActive        bool            `json:"is_active"`
	Participants    int             `json:"participants"`
}

type ParticipantsOut struct {
	Code         domain.RoomCode       `json:"code"`
	Participants []core.ParticipantDTO `json:"participants"`
}

func (h *handlers) roomOut(room domain.Room) RoomOut {
	out := RoomOut{
		Code:            room.Code,
		MaxParticipants: room.MaxParticipants,
		CreatedAt:       room.CreatedAt,
		IsActive:        room.Active,
		Participants:    h.state.Registry.MemberCount(room.Code),
	}
	if room.Title != "" {
		title := room.Title
		out.Title = &title
	}
	return out
}

func roomCode(c *gin.Context) (domain.RoomCode, bool) {
	code, err := domain.ParseRoomCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return "", false
	}
	return code, true
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "node_id": h.nodeID})
}

func (h *handlers) nodeInfo(c *gin.Context) {
	load := h.state.Load()
	c.JSON(http.StatusOK, NodeInfo{
		NodeID:      h.nodeID,
		ActiveRooms: h.state.ActiveRoomsCount(),
		CPULoad:     load.CPU,
		MemLoad:     load.Mem,
		Timestamp:   h.now().UTC(),
	})
}

func (h *handlers) listICEServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": h.iceServers})
}

func (h *handlers) listRooms(c *gin.Context) {
	rooms := h.state.Rooms.List()
	out := make([]RoomOut, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, h.roomOut(room))
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) startRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	var req StartRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	room, created := h.state.Rooms.Start(code, app.StartOptions{
		Title:           req.Title,
		MaxParticipants: req.MaxParticipants,
	})
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	log.Info().Str("module", "adapters.http").Str("room", string(code)).Bool("created", created).Msg("room started")
	c.JSON(status, h.roomOut(room))
}

func (h *handlers) stopRoom(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	room, err := h.state.Rooms.Stop(code)
	if errors.Is(err, app.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Room not found on this node"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", string(code)).Msg("room stopped")
	c.JSON(http.StatusOK, h.roomOut(room))
}

func (h *handlers) participants(c *gin.Context) {
	code, ok := roomCode(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ParticipantsOut{Code: code, Participants: h.state.Registry.Snapshot(code)})
}
