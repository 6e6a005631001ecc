package realtime

import (
	"fmt"
	"sync"
	"testing"
)

func TestPresence_AddAndConnections(t *testing.T) {
	p := NewPresence()
	p.Add("room1", "c1", "p1", "ann")
	p.Add("room1", "c2", "p2", "bo")

	conns := p.Connections("room1")
	if len(conns) != 2 {
		t.Fatalf("room1 has %d connections, want 2", len(conns))
	}
	if got := p.Connections("nope"); len(got) != 0 {
		t.Errorf("unknown room connections = %v, want empty", got)
	}
}

func TestPresence_RemoveReturnsEntry(t *testing.T) {
	p := NewPresence()
	p.Add("room1", "c1", "p1", "ann")

	e, ok := p.Remove("room1", "c1")
	if !ok || e.PlayerID != "p1" || e.DisplayName != "ann" {
		t.Fatalf("Remove = %+v, %v", e, ok)
	}
	if _, ok := p.Remove("room1", "c1"); ok {
		t.Error("second Remove should report not found")
	}
	if got := len(p.Connections("room1")); got != 0 {
		t.Errorf("room1 still has %d connections", got)
	}
}

func TestPresence_RemoveConnSpansRooms(t *testing.T) {
	p := NewPresence()
	p.Add("room1", "c1", "p1", "ann")
	p.Add("room2", "c1", "p1", "ann")
	p.Add("room1", "c2", "p2", "bo")

	removed := p.RemoveConn("c1")
	if len(removed) != 2 {
		t.Fatalf("RemoveConn removed %d entries, want 2", len(removed))
	}
	if got := len(p.Rooms("c1")); got != 0 {
		t.Errorf("c1 still in %d rooms", got)
	}
	if got := len(p.Connections("room1")); got != 1 {
		t.Errorf("room1 has %d connections after disconnect, want 1", got)
	}
}

func TestPresence_SetReady(t *testing.T) {
	p := NewPresence()
	p.Add("room1", "c1", "p1", "ann")
	p.SetReady("room1", "c1", true)

	conns := p.Connections("room1")
	if len(conns) != 1 || !conns[0].Ready {
		t.Errorf("entry after SetReady = %+v", conns)
	}
	// Unknown room/conn must be a no-op, not a panic.
	p.SetReady("nope", "c9", true)
}

func TestPresence_ConcurrentConnectDisconnect(t *testing.T) {
	p := NewPresence()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", n)
			p.Add("room1", conn, fmt.Sprintf("p%d", n), "x")
			p.Rooms(conn)
			p.RemoveConn(conn)
		}(i)
	}
	wg.Wait()
	if got := len(p.Connections("room1")); got != 0 {
		t.Errorf("room1 has %d connections after churn, want 0", got)
	}
}
