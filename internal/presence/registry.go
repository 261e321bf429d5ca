// Package presence tracks which users currently hold a live connection.
//
// A Registry is not safe for concurrent use. It is owned by the hub's run
// loop, which serializes every call.
package presence

import "sort"

// Registry maps a user id to the connection that most recently announced it.
type Registry struct {
	byUser map[string]string
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[string]string)}
}

// MarkOnline records connID as the connection of userID. A later call for
// the same user replaces the earlier connection.
func (r *Registry) MarkOnline(userID, connID string) {
	if userID == "" || connID == "" {
		return
	}
	r.byUser[userID] = connID
}

// MarkOffline removes the user mapped to connID, if any. It reports the
// removed user and whether an entry matched. Repeated calls are no-ops.
func (r *Registry) MarkOffline(connID string) (string, bool) {
	for userID, c := range r.byUser {
		if c == connID {
			delete(r.byUser, userID)
			return userID, true
		}
	}
	return "", false
}

// Snapshot returns the online user ids. They are sorted, but callers must not
// depend on any order.
func (r *Registry) Snapshot() []string {
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (r *Registry) Len() int { return len(r.byUser) }

// Connection returns the connection currently registered for userID.
func (r *Registry) Connection(userID string) (string, bool) {
	c, ok := r.byUser[userID]
	return c, ok
}
