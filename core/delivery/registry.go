package delivery

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/trezcool/masomo-notify/core"
	"github.com/trezcool/masomo-notify/core/notification"
)

// Close reasons
const (
	ReasonSuperseded   = "superseded"
	ReasonSendFailed   = "send failed"
	ReasonDisconnected = "disconnected"
	ReasonShutdown     = "server shutting down"
)

const shardCount = 32

// Conn is one live client connection. Send must not block: it either enqueues the message or fails.
type Conn interface {
	Send(msg Message) error
	Close(reason string)
}

type shard struct {
	mu    sync.Mutex
	conns map[string]Conn
}

// Registry maps user ids to their single live connection.
// Operations on one user are serialized by that user's shard lock; other users are not blocked.
type Registry struct {
	shards [shardCount]*shard
	logger core.Logger
	now    func() time.Time
}

func NewRegistry(logger core.Logger) *Registry {
	r := &Registry{logger: logger, now: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[string]Conn)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register binds conn to userID, closing any connection it supersedes.
func (r *Registry) Register(userID string, conn Conn) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.conns[userID]; ok && old != conn {
		old.Close(ReasonSuperseded)
		r.logger.Info(fmt.Sprintf("user %s reconnected, previous connection superseded", userID))
	}
	s.conns[userID] = conn
}

// Unregister drops userID's connection. When conn is given, the entry is only dropped if it is still that connection.
func (r *Registry) Unregister(userID string, conn ...Conn) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.conns[userID]
	if !ok {
		return false
	}
	if len(conn) > 0 && conn[0] != current {
		return false
	}
	delete(s.conns, userID)
	return true
}

func (r *Registry) Connected(userID string) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[userID]
	return ok
}

func (r *Registry) Count() int {
	var n int
	for _, s := range r.shards {
		s.mu.Lock()
		n += len(s.conns)
		s.mu.Unlock()
	}
	return n
}

// Send delivers msg to userID's connection, if any. A failed send unregisters and closes the connection.
// Nothing is queued for absent users.
func (r *Registry) Send(userID string, msg Message) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[userID]
	if !ok {
		return false
	}
	if err := conn.Send(msg); err != nil {
		delete(s.conns, userID)
		conn.Close(ReasonSendFailed)
		r.logger.Warn(fmt.Sprintf("push to user %s failed, connection dropped: %v", userID, err))
		return false
	}
	return true
}

// Push delivers n to its recipient when connected. The stored record is the source of truth either way.
func (r *Registry) Push(userID string, n notification.Notification) bool {
	return r.Send(userID, NotificationMessage(n, r.now()))
}

// PushAll pushes each notification to its recipient and returns how many were delivered.
func (r *Registry) PushAll(notifs []notification.Notification) int {
	var delivered int
	for _, n := range notifs {
		if r.Push(n.Recipient, n) {
			delivered++
		}
	}
	return delivered
}

// Broadcast sends msg to every registered connection. A failing connection is dropped without affecting the others.
func (r *Registry) Broadcast(msg Message) int {
	var delivered int
	for _, s := range r.shards {
		s.mu.Lock()
		for userID, conn := range s.conns {
			if err := conn.Send(msg); err != nil {
				delete(s.conns, userID)
				conn.Close(ReasonSendFailed)
				r.logger.Warn(fmt.Sprintf("broadcast to user %s failed, connection dropped: %v", userID, err))
				continue
			}
			delivered++
		}
		s.mu.Unlock()
	}
	return delivered
}

// CloseAll closes and forgets every connection.
func (r *Registry) CloseAll(reason string) {
	for _, s := range r.shards {
		s.mu.Lock()
		for userID, conn := range s.conns {
			conn.Close(reason)
			delete(s.conns, userID)
		}
		s.mu.Unlock()
	}
}

// HandleInbound processes a client frame. Read/archive acknowledgements are only logged.
func (r *Registry) HandleInbound(userID string, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		r.logger.Debug(fmt.Sprintf("ignoring malformed frame from user %s: %v", userID, err))
		return
	}
	switch msg.Type {
	case MsgNotificationRead, MsgNotificationArchived:
		r.logger.Debug(fmt.Sprintf("user %s acknowledged %s for notification %s", userID, msg.Type, msg.NotificationID))
	default:
		r.logger.Debug(fmt.Sprintf("ignoring %q frame from user %s", msg.Type, userID))
	}
}
