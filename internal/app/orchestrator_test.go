package app

import (
	"sync"
	"testing"
	"time"

	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/quietrooms/node/internal/metrics"
)

func newTestOrchestrator(policy Policy) *Orchestrator {
	state := NewNodeState(NewRegistry(), NewRoomManager(20))
	return NewOrchestrator(state, policy, metrics.New())
}

func TestOrchestrator_RoomScenario(t *testing.T) {
	o := newTestOrchestrator(DropPolicy{})
	limit := 2
	o.State.Rooms.Start("ab12cd", StartOptions{MaxParticipants: &limit})
	a, b := &fakeConn{}, &fakeConn{}

	o.Join("ab12cd", newParticipant("A", "A"), a)
	if got := a.lastPresence(t); !sameIDs(got, "A") {
		t.Fatalf("A presence after A joined = %v", got)
	}

	o.Join("ab12cd", newParticipant("B", "B"), b)
	for name, c := range map[string]*fakeConn{"A": a, "B": b} {
		if got := c.lastPresence(t); !sameIDs(got, "A", "B") {
			t.Fatalf("%s presence after B joined = %v", name, got)
		}
	}
	if got := o.State.ActiveRoomsCount(); got != 1 {
		t.Fatalf("active rooms = %d, want 1", got)
	}

	a.reset()
	b.reset()
	o.OnFrame("ab12cd", "B", []byte(`{"type":"chat","text":"hi"}`))
	for name, c := range map[string]*fakeConn{"A": a, "B": b} {
		frames := c.decoded(t)
		if len(frames) != 1 || frames[0]["from"] != "B" || frames[0]["name"] != "B" || frames[0]["text"] != "hi" || frames[0]["ts"] == "" {
			t.Fatalf("%s chat frames = %v", name, frames)
		}
	}

	o.Leave("ab12cd", "A", a)
	if got := b.lastPresence(t); !sameIDs(got, "B") {
		t.Fatalf("B presence after A left = %v", got)
	}

	o.Leave("ab12cd", "B", b)
	if got := o.State.ActiveRoomsCount(); got != 0 {
		t.Fatalf("active rooms after everyone left = %d, want 0", got)
	}
	if snap := o.State.Registry.Snapshot("ab12cd"); len(snap) != 0 {
		t.Fatalf("membership not pruned: %+v", snap)
	}
	if _, ok := o.State.Rooms.Get("ab12cd"); !ok {
		t.Fatalf("room session disappeared with its membership")
	}
}

func TestOrchestrator_ReconnectReplacesHandle(t *testing.T) {
	o := newTestOrchestrator(DropPolicy{})
	old, fresh, other := &fakeConn{}, &fakeConn{}, &fakeConn{}
	o.Join("ab12cd", newParticipant("A", "A"), old)
	o.Join("ab12cd", newParticipant("B", "B"), other)
	o.Join("ab12cd", newParticipant("A", "A"), fresh)

	if !old.isClosed() {
		t.Fatalf("replaced handle left open")
	}
	if got := other.lastPresence(t); !sameIDs(got, "B", "A") {
		t.Fatalf("presence after reconnect = %v", got)
	}

	// the old connection's teardown must not evict the new one
	if o.Leave("ab12cd", "A", old) {
		t.Fatalf("stale leave reported a removal")
	}
	fresh.reset()
	o.OnFrame("ab12cd", "B", []byte(`{"type":"signal","to":"A","sdp":"x"}`))
	if len(fresh.received()) != 1 {
		t.Fatalf("new handle got %d frames, want 1", len(fresh.received()))
	}
}

func TestOrchestrator_StartDoesNotDisturbParticipants(t *testing.T) {
	o := newTestOrchestrator(DropPolicy{})
	a := &fakeConn{}
	o.Join("ab12cd", newParticipant("A", "A"), a)
	before := len(a.received())

	o.State.Rooms.Start("ab12cd", StartOptions{})
	o.State.Rooms.Start("ab12cd", StartOptions{})

	if len(a.received()) != before || a.isClosed() {
		t.Fatalf("start disturbed a connected participant")
	}
	if got := o.State.Registry.MemberCount("ab12cd"); got != 1 {
		t.Fatalf("member count = %d, want 1", got)
	}
	if n := len(o.State.Rooms.List()); n != 1 {
		t.Fatalf("sessions = %d, want 1", n)
	}
}

func TestOrchestrator_JoinBeyondAdvisoryCapacity(t *testing.T) {
	o := newTestOrchestrator(DropPolicy{})
	limit := 1
	o.State.Rooms.Start("ab12cd", StartOptions{MaxParticipants: &limit})
	o.Join("ab12cd", newParticipant("A", "A"), &fakeConn{})
	o.Join("ab12cd", newParticipant("B", "B"), &fakeConn{})
	if got := o.State.Registry.MemberCount("ab12cd"); got != 2 {
		t.Fatalf("member count = %d, want 2", got)
	}
}

func TestOrchestrator_BackpressurePolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		wantClosed bool
	}{
		{"drop", DropPolicy{}, false},
		{"kick", KickPolicy{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(tt.policy)
			slow, fast := &fakeConn{}, &fakeConn{}
			o.Join("ab12cd", newParticipant("S", "S"), slow)
			o.Join("ab12cd", newParticipant("F", "F"), fast)
			slow.mu.Lock()
			slow.err = core.ErrBackpressure
			slow.mu.Unlock()

			fast.reset()
			o.OnFrame("ab12cd", "F", []byte(`{"type":"chat","text":"x"}`))
			if tt.wantClosed && !waitClosed(slow, time.Second) {
				t.Fatal("slow consumer was not closed")
			}
			if !tt.wantClosed && slow.isClosed() {
				t.Fatal("slow consumer closed under drop policy")
			}
			if len(fast.received()) != 1 {
				t.Fatalf("fast consumer missed the frame")
			}
			if got := o.Metrics.DroppedCount(metrics.DropBackpressure); got != 1 {
				t.Fatalf("backpressure drops = %v, want 1", got)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]BackpressureAction{"": DropFrame, "drop": DropFrame, "kick": KickMember} {
		p, err := ParsePolicy(name)
		if err != nil {
			t.Fatalf("ParsePolicy(%q): %v", name, err)
		}
		if got := p.OnBackPressure(domain.RoomCode("x"), nil); got != want {
			t.Fatalf("ParsePolicy(%q) action = %v, want %v", name, got, want)
		}
	}
	if _, err := ParsePolicy("disconnect-everyone"); err == nil {
		t.Fatalf("unknown policy accepted")
	}
}

// stuckConn refuses frames once full and blocks in Close until released.
type stuckConn struct {
	full    bool
	once    sync.Once
	release chan struct{}
	closing chan struct{}
}

func (c *stuckConn) TrySend(core.Frame) error {
	if c.full {
		return core.ErrBackpressure
	}
	return nil
}

func (c *stuckConn) Close() {
	c.once.Do(func() { close(c.closing) })
	<-c.release
}

func TestOrchestrator_KickDoesNotBlockSender(t *testing.T) {
	o := newTestOrchestrator(KickPolicy{})
	slow := &stuckConn{release: make(chan struct{}), closing: make(chan struct{})}
	defer close(slow.release)
	o.Join("ab12cd", newParticipant("S", "S"), slow)
	o.Join("ab12cd", newParticipant("F", "F"), &fakeConn{})
	slow.full = true

	done := make(chan struct{})
	go func() {
		o.OnFrame("ab12cd", "F", []byte(`{"type":"chat","text":"x"}`))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnFrame blocked on the slow consumer's Close")
	}
	select {
	case <-slow.closing:
	case <-time.After(time.Second):
		t.Fatal("slow consumer was never closed")
	}
}
