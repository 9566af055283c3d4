package domain

import "time"

// Participant is one connected endpoint's metadata inside a room.
// No transport or lifecycle logic here.
type Participant struct {
	ID       ParticipantID
	Name     string
	JoinedAt time.Time
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(id ParticipantID, name string, joinedAt time.Time) Participant {
	return Participant{
		ID:       id,
		Name:     SanitizeDisplayName(name),
		JoinedAt: joinedAt,
	}
}
