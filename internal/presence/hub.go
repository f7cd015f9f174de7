package presence

import (
	"sync"

	"go.uber.org/zap"
)

// Conn is a push-channel connection. Send must not block.
type Conn interface {
	ID() string
	Send(ev Event) error
}

// Room tracks which connections follow which rooms. It is process-local;
// a distributed implementation can replace Hub behind this interface.
type Room interface {
	Join(room string, c Conn) int
	Leave(room string, c Conn) int
	LeaveAll(c Conn)
	Broadcast(room string, ev Event) int
	Count(room string) int
}

// Hub is the in-memory Room. Every membership change broadcasts a presence
// event with the new count to the room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[Conn]struct{}
	joined map[Conn]map[string]struct{}
	log    *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[Conn]struct{}),
		joined: make(map[Conn]map[string]struct{}),
		log:    log,
	}
}

// Join adds c to room and returns the room size. Joining twice is a no-op.
func (h *Hub) Join(room string, c Conn) int {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Conn]struct{})
		h.rooms[room] = members
	}
	_, already := members[c]
	members[c] = struct{}{}
	rooms, ok := h.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[c] = rooms
	}
	rooms[room] = struct{}{}
	count := len(members)
	h.mu.Unlock()

	if !already {
		h.announce(room, count)
	}
	return count
}

// Leave removes c from room and returns the remaining size.
func (h *Hub) Leave(room string, c Conn) int {
	h.mu.Lock()
	count, changed := h.remove(room, c)
	h.mu.Unlock()

	if changed {
		h.announce(room, count)
	}
	return count
}

// LeaveAll drops c from every room it joined, e.g. on disconnect.
func (h *Hub) LeaveAll(c Conn) {
	h.mu.Lock()
	counts := make(map[string]int)
	for room := range h.joined[c] {
		if count, changed := h.remove(room, c); changed {
			counts[room] = count
		}
	}
	delete(h.joined, c)
	h.mu.Unlock()

	for room, count := range counts {
		h.announce(room, count)
	}
}

// remove must be called with mu held.
func (h *Hub) remove(room string, c Conn) (int, bool) {
	members, ok := h.rooms[room]
	if !ok {
		return 0, false
	}
	if _, ok := members[c]; !ok {
		return len(members), false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joined, c)
		}
	}
	return len(members), true
}

// Broadcast sends ev to every member of room and returns how many accepted
// it. Delivery is best-effort.
func (h *Hub) Broadcast(room string, ev Event) int {
	h.mu.RLock()
	members := make([]Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	if ev.Room == "" {
		ev.Room = room
	}
	delivered := 0
	for _, c := range members {
		if err := c.Send(ev); err != nil {
			h.log.Debug("Push send dropped", zap.String("room", room), zap.String("conn", c.ID()), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Count(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) announce(room string, count int) {
	h.Broadcast(room, Event{
		Type:    TypePresence,
		Room:    room,
		Payload: PresencePayload{Room: room, Count: count},
	})
}
