package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func waitClosed(c *fakeConn, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.isClosed() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c.isClosed()
}

func (c *fakeConn) received() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// decoded returns every received frame as a generic JSON object.
func (c *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, f := range c.received() {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("frame is not json: %v: %s", err, f)
		}
		out = append(out, m)
	}
	return out
}

// lastPresence returns the ids of the last participants frame received.
func (c *fakeConn) lastPresence(t *testing.T) []string {
	t.Helper()
	frames := c.decoded(t)
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i]["type"] != FrameParticipants {
			continue
		}
		list, _ := frames[i]["participants"].([]any)
		ids := make([]string, 0, len(list))
		for _, entry := range list {
			ids = append(ids, entry.(map[string]any)["id"].(string))
		}
		return ids
	}
	t.Fatalf("no participants frame received")
	return nil
}

func newParticipant(id, name string) domain.Participant {
	return domain.NewParticipant(domain.ParticipantID(id), name, time.Now())
}

func sameIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
