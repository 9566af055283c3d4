package domain

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseRoomCode(t *testing.T) {
	tests := []struct {
		raw     string
		want    RoomCode
		wantErr bool
	}{
		{raw: "ab12cd", want: "ab12cd"},
		{raw: "  ab12cd ", want: "ab12cd"},
		{raw: "", wantErr: true},
		{raw: "   ", wantErr: true},
		{raw: "a/b", wantErr: true},
		{raw: strings.Repeat("x", MaxRoomCodeLen), want: RoomCode(strings.Repeat("x", MaxRoomCodeLen))},
		{raw: strings.Repeat("x", MaxRoomCodeLen+1), wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseRoomCode(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidRoomCode) {
				t.Fatalf("ParseRoomCode(%q) err = %v, want ErrInvalidRoomCode", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRoomCode(%q) unexpected err: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseRoomCode(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	if got := SanitizeDisplayName("  "); got != DefaultDisplayName {
		t.Fatalf("empty name = %q, want %q", got, DefaultDisplayName)
	}
	if got := SanitizeDisplayName(" Alice "); got != "Alice" {
		t.Fatalf("trimmed name = %q, want Alice", got)
	}
	long := strings.Repeat("я", MaxDisplayNameLen+10)
	got := SanitizeDisplayName(long)
	if n := utf8.RuneCountInString(got); n != MaxDisplayNameLen {
		t.Fatalf("rune count = %d, want %d", n, MaxDisplayNameLen)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncated name is not valid utf-8")
	}
}

func TestResolveParticipantID(t *testing.T) {
	if got, err := ResolveParticipantID(" alice "); err != nil || got != "alice" {
		t.Fatalf("got %q, %v; want alice", got, err)
	}
	a, errA := ResolveParticipantID("")
	b, errB := ResolveParticipantID("")
	if errA != nil || errB != nil || a == "" || b == "" || a == b {
		t.Fatalf("generated ids must be non-empty and distinct: %q %q", a, b)
	}

	atLimit := strings.Repeat("a", MaxParticipantIDLen-2) + "é"
	if got, err := ResolveParticipantID(atLimit); err != nil || string(got) != atLimit {
		t.Fatalf("id at the byte limit: got %q, %v", got, err)
	}

	for name, raw := range map[string]string{
		"rune split at limit": strings.Repeat("a", MaxParticipantIDLen-1) + "é",
		"shared prefix tab1":  strings.Repeat("x", MaxParticipantIDLen) + "-tab1",
		"invalid utf8":        "id-\xff",
	} {
		if got, err := ResolveParticipantID(raw); !errors.Is(err, ErrInvalidParticipantID) {
			t.Fatalf("%s: got %q, %v; want ErrInvalidParticipantID", name, got, err)
		}
	}
	if !utf8.ValidString(atLimit) {
		t.Fatal("fixture must be valid utf8")
	}
}
