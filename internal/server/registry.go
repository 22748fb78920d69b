package server

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatrooms/internal/stats"
)

// Connection is one live transport session.
type Connection interface {
	// Send queues ev for delivery. It returns an error wrapping
	// ErrTransportClosed once the peer can no longer receive.
	Send(ev *ServerEvent) error
	Close()
}

// Member is a registered connection together with its registry id.
type Member struct {
	Id   string
	Conn Connection
}

type connEntry struct {
	conn     Connection
	username string
	roomId   string
}

// Registry tracks live connections, the username each one asserted and the
// single room each one is currently in.
type Registry struct {
	log     *log.Logger
	stats   stats.StatsProvider
	mu      sync.RWMutex
	conns   map[string]*connEntry
	members map[string]map[string]struct{}
}

func NewRegistry(logger *log.Logger, su stats.StatsProvider) *Registry {
	su.RegisterMetric(stats.NumActiveConnections)

	return &Registry{
		log:     logger,
		stats:   su,
		conns:   make(map[string]*connEntry),
		members: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(conn Connection) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.conns[id] = &connEntry{conn: conn}
	r.mu.Unlock()

	r.stats.Incr(stats.NumActiveConnections)
	r.log.Printf("registered connection %q", id)

	return id
}

func (r *Registry) SetIdentity(id, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[id]; ok {
		e.username = username
	}
}

// SetRoom moves the connection into roomId, leaving whatever room it was in.
// Unknown ids are ignored.
func (r *Registry) SetRoom(id, roomId string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return
	}

	r.leaveLocked(id, e)
	e.roomId = roomId
	if r.members[roomId] == nil {
		r.members[roomId] = make(map[string]struct{})
	}
	r.members[roomId][id] = struct{}{}
}

func (r *Registry) ClearRoom(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[id]; ok {
		r.leaveLocked(id, e)
	}
}

// ClearRoomForAll evicts every member of roomId and returns their ids.
func (r *Registry) ClearRoomForAll(roomId string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := make([]string, 0, len(r.members[roomId]))
	for id := range r.members[roomId] {
		if e, ok := r.conns[id]; ok {
			e.roomId = ""
		}
		evicted = append(evicted, id)
	}
	delete(r.members, roomId)

	return evicted
}

// Unregister forgets the connection. It reports whether the connection was
// still registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	e, ok := r.conns[id]
	if ok {
		r.leaveLocked(id, e)
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if ok {
		r.stats.Decr(stats.NumActiveConnections)
		r.log.Printf("unregistered connection %q", id)
	}

	return ok
}

// Lookup returns the identity and room of a registered connection.
func (r *Registry) Lookup(id string) (username, roomId string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return "", "", false
	}

	return e.username, e.roomId, true
}

// MembersOf returns a snapshot of the connections currently in roomId.
func (r *Registry) MembersOf(roomId string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.members[roomId]))
	for id := range r.members[roomId] {
		members = append(members, Member{Id: id, Conn: r.conns[id].conn})
	}

	return members
}

// AllConnections returns a snapshot of every registered connection.
func (r *Registry) AllConnections() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.conns))
	for id, e := range r.conns {
		members = append(members, Member{Id: id, Conn: e.conn})
	}

	return members
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// leaveLocked must be called with mu held.
func (r *Registry) leaveLocked(id string, e *connEntry) {
	if e.roomId == "" {
		return
	}

	if ids, ok := r.members[e.roomId]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.members, e.roomId)
		}
	}
	e.roomId = ""
}
