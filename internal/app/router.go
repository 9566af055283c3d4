package app

import (
	"encoding/json"
	"time"

	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/quietrooms/node/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Frame types of the realtime channel.
const (
	FrameSignal       = "signal"
	FrameControl      = "control"
	FrameChat         = "chat"
	FrameParticipants = "participants"
)

// envelope carries only the discriminant; the rest of a frame is opaque
// until its type says which fields matter.
type envelope struct {
	Type string `json:"type"`
}

type targetFields struct {
	To json.RawMessage `json:"to"`
}

type chatFields struct {
	Text json.RawMessage `json:"text"`
	Name json.RawMessage `json:"name"`
}

// stringField reports the value of a raw JSON string. Absent, null and
// non-string values yield ok=false.
func stringField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

type chatFrame struct {
	Type string               `json:"type"`
	From domain.ParticipantID `json:"from"`
	Name string               `json:"name"`
	Text string               `json:"text"`
	TS   string               `json:"ts"`
}

// RouteResult describes what the router did with one inbound frame.
// DropReason is empty when the frame was routed.
type RouteResult struct {
	Type       string
	DropReason string
	Delivery   core.PublishResult
}

// MessageRouter classifies inbound frames and delivers them to their targets.
// It never reports failures back to the sender.
type MessageRouter struct {
	Registry *Registry
	Metrics  *metrics.Metrics

	now func() time.Time
}

func NewMessageRouter(reg *Registry, m *metrics.Metrics) *MessageRouter {
	return &MessageRouter{Registry: reg, Metrics: m, now: time.Now}
}

func (r *MessageRouter) Route(code domain.RoomCode, from domain.ParticipantID, data []byte) RouteResult {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return r.drop(code, from, "", metrics.DropMalformed)
	}

	switch env.Type {
	case FrameSignal:
		to, ok := target(data)
		if !ok {
			return r.drop(code, from, env.Type, metrics.DropMissingField)
		}
		return r.unicast(code, from, env.Type, to, data)

	case FrameControl:
		if to, ok := target(data); ok {
			return r.unicast(code, from, env.Type, to, data)
		}
		res := r.Registry.Broadcast(code, data)
		return r.routed(env.Type, res)

	case FrameChat:
		var in chatFields
		if err := json.Unmarshal(data, &in); err != nil {
			return r.drop(code, from, env.Type, metrics.DropMalformed)
		}
		text, ok := stringField(in.Text)
		if !ok || text == "" {
			return r.drop(code, from, env.Type, metrics.DropMissingField)
		}
		name, _ := stringField(in.Name)
		return r.chat(code, from, text, name)

	case FrameParticipants:
		return r.drop(code, from, env.Type, metrics.DropServerOnlyType)

	default:
		return r.drop(code, from, env.Type, metrics.DropUnknownType)
	}
}

// target reads the "to" key alone. A missing, empty or non-string value
// means no target.
func target(data []byte) (domain.ParticipantID, bool) {
	var f targetFields
	if err := json.Unmarshal(data, &f); err != nil {
		return "", false
	}
	to, ok := stringField(f.To)
	if !ok || to == "" {
		return "", false
	}
	return domain.ParticipantID(to), true
}

func (r *MessageRouter) unicast(code domain.RoomCode, from domain.ParticipantID, frameType string, to domain.ParticipantID, data []byte) RouteResult {
	res, found := r.Registry.SendTo(code, to, data)
	if !found {
		return r.drop(code, from, frameType, metrics.DropUnresolvable)
	}
	return r.routed(frameType, res)
}

func (r *MessageRouter) chat(code domain.RoomCode, from domain.ParticipantID, text, name string) RouteResult {
	if name == "" {
		name = domain.DefaultDisplayName
		if p, _, ok := r.Registry.Lookup(code, from); ok {
			name = p.Name
		}
	}
	out, err := json.Marshal(chatFrame{
		Type: FrameChat,
		From: from,
		Name: name,
		Text: text,
		TS:   r.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Msg("chat marshal")
		return r.drop(code, from, FrameChat, metrics.DropMalformed)
	}
	return r.routed(FrameChat, r.Registry.Broadcast(code, out))
}

func (r *MessageRouter) routed(frameType string, res core.PublishResult) RouteResult {
	r.Metrics.FrameRouted(frameType)
	r.Metrics.SendsDropped(metrics.DropClosed, res.Failed)
	return RouteResult{Type: frameType, Delivery: res}
}

func (r *MessageRouter) drop(code domain.RoomCode, from domain.ParticipantID, frameType, reason string) RouteResult {
	r.Metrics.FrameDropped(reason)
	log.Debug().Str("module", "app.router").Str("room", string(code)).Str("from", string(from)).Str("type", frameType).Str("reason", reason).Msg("frame dropped")
	return RouteResult{Type: frameType, DropReason: reason}
}
