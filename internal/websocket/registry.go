package websocket

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"attendancehub/pkg/interfaces"
	"attendancehub/pkg/types"
)

// Predicate selects connections for a broadcast.
type Predicate func(conn interfaces.Connection) bool

// ByClientType matches identified connections with the given client type.
func ByClientType(clientType string) Predicate {
	want := types.NormalizeClientType(clientType)
	return func(conn interfaces.Connection) bool {
		return conn.IsIdentified() && conn.ClientType() == want
	}
}

// BySource matches identified connections from one side of the protocol.
func BySource(source string) Predicate {
	return func(conn interfaces.Connection) bool {
		return conn.IsIdentified() && conn.Source() == source
	}
}

// ByClient matches a client type on one side of the protocol. A lecturer
// email and a device location never collide this way.
func ByClient(clientType, source string) Predicate {
	byType := ByClientType(clientType)
	return func(conn interfaces.Connection) bool {
		return byType(conn) && conn.Source() == source
	}
}

// Registry tracks live connections. There is no direct addressing: every
// send filters the set and writes to all matches.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
	}
}

// Register adds a connection with whatever identity it currently has.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	r.connections[conn.ID()] = conn
	r.mu.Unlock()

	log.WithField("conn_id", conn.ID()).Debug("connection registered")
	return nil
}

// Identify sets the identity of a connection. Re-identifying overwrites the
// previous identity.
func (r *Registry) Identify(conn interfaces.Connection, clientType, source string) error {
	if conn == nil {
		return ErrNilConnection
	}
	conn.SetIdentity(clientType, source)

	log.WithFields(log.Fields{
		"conn_id":     conn.ID(),
		"client_type": conn.ClientType(),
		"source":      source,
	}).Info("connection identified")
	return nil
}

// Unregister removes a connection. Safe for connections that never
// identified or were already removed.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, ok := r.connections[conn.ID()]; ok && registered == conn {
		delete(r.connections, conn.ID())
		log.WithFields(log.Fields{
			"conn_id":     conn.ID(),
			"client_type": conn.ClientType(),
		}).Debug("connection unregistered")
	}
}

// Matching returns a snapshot of the connections that satisfy match.
func (r *Registry) Matching(match Predicate) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []interfaces.Connection
	for _, conn := range r.connections {
		if match == nil || match(conn) {
			out = append(out, conn)
		}
	}
	return out
}

// BroadcastMatching writes message to every matching connection and returns
// how many writes were accepted. No match is a silent no-op.
func (r *Registry) BroadcastMatching(match Predicate, message interface{}) int {
	delivered := 0
	for _, conn := range r.Matching(match) {
		if err := conn.WriteJSON(message); err != nil {
			log.WithFields(log.Fields{
				"conn_id":     conn.ID(),
				"client_type": conn.ClientType(),
			}).WithError(err).Warn("failed to deliver message")
			continue
		}
		delivered++
	}
	return delivered
}

// BroadcastAll writes message to every registered connection.
func (r *Registry) BroadcastAll(message interface{}) int {
	return r.BroadcastMatching(nil, message)
}

// HasClient reports whether at least one connection matches.
func (r *Registry) HasClient(match Predicate) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.connections {
		if match(conn) {
			return true
		}
	}
	return false
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []interfaces.Connection {
	return r.Matching(nil)
}

// GetStats returns connection counts for monitoring.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := map[string]int{
		"total_connections": len(r.connections),
		"web_app":           0,
		"hardware":          0,
		"unidentified":      0,
	}
	for _, conn := range r.connections {
		switch {
		case !conn.IsIdentified():
			stats["unidentified"]++
		case conn.Source() == types.SourceWebApp:
			stats["web_app"]++
		case conn.Source() == types.SourceHardware:
			stats["hardware"]++
		}
	}
	return stats
}

// CloseAll closes every registered connection. Read pumps unregister them
// as they exit.
func (r *Registry) CloseAll() {
	for _, conn := range r.Connections() {
		_ = conn.Close()
	}
}
