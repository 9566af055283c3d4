// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxParticipantIDLen = 128
	MaxDisplayNameLen   = 64

	DefaultDisplayName = "guest"
)

var ErrInvalidParticipantID = errors.New("invalid client id")

type ParticipantID string

// NewParticipantID returns a fresh opaque identity for callers that did not supply one.
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

// ResolveParticipantID keeps a caller-supplied identity, or generates one when
// it is empty. Identities are never shortened: ids longer than
// MaxParticipantIDLen bytes or not valid UTF-8 are rejected.
func ResolveParticipantID(raw string) (ParticipantID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewParticipantID(), nil
	}
	if len(raw) > MaxParticipantIDLen || !utf8.ValidString(raw) {
		return "", ErrInvalidParticipantID
	}
	return ParticipantID(raw), nil
}

// SanitizeDisplayName trims the name and caps it at MaxDisplayNameLen runes.
// An empty name becomes DefaultDisplayName.
func SanitizeDisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return DefaultDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLen {
		name = string([]rune(name)[:MaxDisplayNameLen])
	}
	return name
}
