// internal/agent/session_context.go
package agent

import (
	"sync"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// SessionContext is the in-process state of one session: the task being run,
// the resources visited, the actions executed and the latest content per resource.
type SessionContext struct {
	mu      sync.RWMutex
	task    string
	visited []string
	actions []schemas.ActionRecord
	content map[string]string
}

func newSessionContext() *SessionContext {
	return &SessionContext{content: make(map[string]string)}
}

// SetTask records the task currently being run in this session.
func (s *SessionContext) SetTask(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.task = task
}

// Task returns the task currently being run.
func (s *SessionContext) Task() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.task
}

// Visit appends a resource to the visited list.
func (s *SessionContext) Visit(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = append(s.visited, url)
}

// Visited returns a copy of the visited list, in visit order.
func (s *SessionContext) Visited() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.visited...)
}

// RecordAction appends to the action log.
func (s *SessionContext) RecordAction(rec schemas.ActionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, rec)
}

// Actions returns a copy of the action log.
func (s *SessionContext) Actions() []schemas.ActionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]schemas.ActionRecord{}, s.actions...)
}

// RecentActions returns at most n of the latest actions, oldest first.
func (s *SessionContext) RecentActions(n int) []schemas.ActionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.actions) - n
	if start < 0 {
		start = 0
	}
	return append([]schemas.ActionRecord{}, s.actions[start:]...)
}

// SetContent stores the latest extracted content of a resource.
func (s *SessionContext) SetContent(url, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[url] = text
}

// Content returns the latest extracted content of a resource.
func (s *SessionContext) Content(url string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.content[url]
	return text, ok
}

// ContextStore holds the session contexts of one Orchestrator.
type ContextStore struct {
	mu       sync.Mutex
	sessions map[string]*SessionContext
}

// NewContextStore creates an empty store.
func NewContextStore() *ContextStore {
	return &ContextStore{sessions: make(map[string]*SessionContext)}
}

// Get returns the context for sessionID, creating it on first use.
func (c *ContextStore) Get(sessionID string) *SessionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.sessions[sessionID]
	if !ok {
		sc = newSessionContext()
		c.sessions[sessionID] = sc
	}
	return sc
}

// Discard drops the context for sessionID.
func (c *ContextStore) Discard(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// Len returns the number of live session contexts.
func (c *ContextStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
