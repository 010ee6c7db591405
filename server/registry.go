package server

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one client connection's live routing identity. The dispatcher
// goroutine owns it; routing code only uses Push, which serializes writes.
type Session struct {
	ID       uuid.UUID
	Username string // empty until authenticated; written only by the owning dispatcher
	IP       string
	Hostname string

	conn         net.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func newSession(conn net.Conn, ip, hostname string, writeTimeout time.Duration) *Session {
	return &Session{
		ID:           uuid.New(),
		IP:           ip,
		Hostname:     hostname,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Push writes one line to the client. Safe to call from any goroutine.
func (s *Session) Push(line string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}

// SessionRegistry is the single point of truth for who is connected and who
// is online. One lock guards both the username index and the handle set, so
// routing and teardown always see a consistent view of both.
type SessionRegistry struct {
	mu     sync.RWMutex
	byName map[string]*Session
	all    map[uuid.UUID]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byName: make(map[string]*Session),
		all:    make(map[uuid.UUID]*Session),
	}
}

// Track adds a connected but not yet authenticated session to the broadcast
// set.
func (r *SessionRegistry) Track(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all[s.ID] = s
}

// Register binds a username to a session and reports whether a prior entry
// was replaced. Replacement is silent: last login wins, the replaced handle
// stops receiving routed traffic.
func (r *SessionRegistry) Register(username string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.byName[username]
	r.byName[username] = s
	r.all[s.ID] = s
	return replaced
}

// Unregister removes the session from the broadcast set, and from the
// username index only if it is still the current entry for its username.
// Returns whether the username entry was removed, so the caller knows this
// teardown actually took the user offline (a replaced session's teardown
// must not).
func (r *SessionRegistry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.all, s.ID)
	return r.unbindLocked(s)
}

// Unbind drops the session's username binding but keeps the connection in
// the broadcast set. Used when a live connection re-authenticates as a
// different user. Returns whether the entry was removed.
func (r *SessionRegistry) Unbind(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbindLocked(s)
}

func (r *SessionRegistry) unbindLocked(s *Session) bool {
	if s.Username == "" {
		return false
	}
	current, ok := r.byName[s.Username]
	if !ok || current.ID != s.ID {
		return false
	}
	delete(r.byName, s.Username)
	return true
}

// Lookup returns the current session for a username.
func (r *SessionRegistry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[username]
	return s, ok
}

// AllHandles snapshots every connected session, authenticated or not.
// Broadcasters iterate the snapshot without holding the registry lock.
func (r *SessionRegistry) AllHandles() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*Session, 0, len(r.all))
	for _, s := range r.all {
		handles = append(handles, s)
	}
	return handles
}

// AuthedHandles snapshots every session currently bound to a username.
func (r *SessionRegistry) AuthedHandles() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*Session, 0, len(r.byName))
	for _, s := range r.byName {
		handles = append(handles, s)
	}
	return handles
}

func (r *SessionRegistry) CountConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.all)
}

func (r *SessionRegistry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byName))
	for username := range r.byName {
		users = append(users, username)
	}
	return users
}
