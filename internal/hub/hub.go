package hub

import "sync"

// Viewers is the room every dashboard connection joins.
const Viewers = "viewers"

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	Room   string
	Writer Writer
}

// Hub groups live connections into rooms. Broadcast writes outside the
// lock and drops connections whose writes fail.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{rooms: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conn.Room] == nil {
		h.rooms[conn.Room] = make(map[*Connection]struct{})
	}
	h.rooms[conn.Room][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.rooms[conn.Room]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.rooms, conn.Room)
	}
}

// Len returns the number of connections in room.
func (h *Hub) Len(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends message to every connection in room and returns how many
// writes succeeded.
func (h *Hub) Broadcast(room string, message []byte) int {
	h.mu.RLock()
	set := h.rooms[room]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
	return delivered
}
