package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
)

// Canonical JSON: map keys are sorted.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned by Delete when the key does not exist.
var ErrNotFound = errors.New("entry not found")

// Record is a stored value in its serialized form.
type Record struct {
	SessionID string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Entry is a decoded record as returned to callers.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend is a durable engine under the Store.
type Backend interface {
	// Put upserts rec; the last write wins.
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, sessionID, key string) (Record, bool, error)
	// List returns every record of a session, most recent write first.
	List(ctx context.Context, sessionID string) ([]Record, error)
	Delete(ctx context.Context, sessionID, key string) error
	AppendTask(ctx context.Context, rec schemas.TaskRecord) error
	// Tasks returns up to limit task records of a session, newest first.
	Tasks(ctx context.Context, sessionID string, limit int) ([]schemas.TaskRecord, error)
	Close() error
}

type mirrorKey struct {
	session string
	key     string
}

// mirrorEntry keeps a record next to the value as it was written, so
// in-process reads of a string return it verbatim even when it parses as JSON.
type mirrorEntry struct {
	rec   Record
	value any
}

// Store is the session key-value store: a durable backend fronted by an
// in-process read-through mirror.
type Store struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	mirror map[mirrorKey]mirrorEntry
}

// New creates a store over backend.
func New(backend Backend, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		log:     logger.Named("store"),
		now:     func() time.Time { return time.Now().UTC() },
		mirror:  make(map[mirrorKey]mirrorEntry),
	}
}

// Encode serializes a value for storage: strings verbatim, everything else as canonical JSON.
func Encode(value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(b), nil
}

// Decode returns the structured form of raw when it parses as JSON, else raw itself.
func Decode(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// Put upserts value under (sessionID, key). The mirror is updated only after the durable write succeeds.
func (s *Store) Put(ctx context.Context, sessionID, key string, value any) error {
	raw, err := Encode(value)
	if err != nil {
		return err
	}
	rec := Record{SessionID: sessionID, Key: key, Value: raw, UpdatedAt: s.now()}
	if err := s.backend.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}

	written := value
	if _, ok := value.(string); !ok {
		written = Decode(raw)
	}

	s.mu.Lock()
	s.mirror[mirrorKey{sessionID, key}] = mirrorEntry{rec: rec, value: written}
	s.mu.Unlock()

	s.log.Debug("Saved entry.", zap.String("session_id", sessionID), zap.String("key", key))
	return nil
}

// Get returns the value for (sessionID, key) and whether it exists. Values
// written by this process come back as written; durable reads are decoded.
func (s *Store) Get(ctx context.Context, sessionID, key string) (any, bool, error) {
	mk := mirrorKey{sessionID, key}
	s.mu.RLock()
	entry, ok := s.mirror[mk]
	s.mu.RUnlock()
	if ok {
		return entry.value, true, nil
	}

	rec, found, err := s.backend.Get(ctx, sessionID, key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %q: %w", key, err)
	}
	if !found {
		return nil, false, nil
	}
	return s.remember(rec), true, nil
}

// remember populates the mirror unless a newer write is already there, and
// returns the value the mirror now holds for rec.
func (s *Store) remember(rec Record) any {
	mk := mirrorKey{rec.SessionID, rec.Key}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.mirror[mk]; ok {
		if cur.rec.Value == rec.Value {
			return cur.value
		}
		if cur.rec.UpdatedAt.After(rec.UpdatedAt) {
			return Decode(rec.Value)
		}
	}
	value := Decode(rec.Value)
	s.mirror[mk] = mirrorEntry{rec: rec, value: value}
	return value
}

// GetAll returns every entry of a session, most recent write first.
func (s *Store) GetAll(ctx context.Context, sessionID string) ([]Entry, error) {
	recs, err := s.backend.List(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session %q: %w", sessionID, err)
	}
	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, Entry{Key: rec.Key, Value: s.remember(rec), UpdatedAt: rec.UpdatedAt})
	}
	return entries, nil
}

// Delete removes (sessionID, key) from the backend and the mirror.
func (s *Store) Delete(ctx context.Context, sessionID, key string) error {
	if err := s.backend.Delete(ctx, sessionID, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	s.mu.Lock()
	delete(s.mirror, mirrorKey{sessionID, key})
	s.mu.Unlock()
	return nil
}

// SaveTaskResult appends a completed task to the session's history.
func (s *Store) SaveTaskResult(ctx context.Context, sessionID, task string, urls []string, result schemas.TaskResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	if urls == nil {
		urls = []string{}
	}
	rec := schemas.TaskRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Task:      task,
		URLs:      urls,
		Result:    body,
		CreatedAt: s.now(),
	}
	if err := s.backend.AppendTask(ctx, rec); err != nil {
		return fmt.Errorf("failed to save task history: %w", err)
	}
	return nil
}

// TaskHistory returns up to limit past tasks of a session, newest first. A non-positive limit defaults to 10.
func (s *Store) TaskHistory(ctx context.Context, sessionID string, limit int) ([]schemas.TaskRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	recs, err := s.backend.Tasks(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load task history: %w", err)
	}
	return recs, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
