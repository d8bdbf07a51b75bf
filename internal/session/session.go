// Package session keeps the ephemeral per-conversation key/value scope.
// States live in a TTL cache and are never persisted.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"amble/internal/models"
)

// Well-known keys.
const (
	KeyCurrentTime   = "current_time"
	KeyUserName      = "user:name"
	KeyUserLocation  = "user:location"
	KeyUserTimezone  = "user:timezone"
	KeyUserInterests = "user:interests"
	KeyUserLanguage  = "user:language"
)

// State is one session's scope. Safe for concurrent use.
type State struct {
	ID      string
	UserKey string

	mu          sync.RWMutex
	values      map[string]interface{}
	initialized bool
}

func newState(id, userKey string) *State {
	return &State{ID: id, UserKey: userKey, values: make(map[string]interface{})}
}

// Get returns a value.
func (s *State) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns a string value or "".
func (s *State) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stores a value.
func (s *State) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Snapshot copies the current values.
func (s *State) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Initialized reports whether the profile has been loaded into this session.
func (s *State) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// LoadProfile caches the profile fields the composer reads and marks the session initialized.
func (s *State) LoadProfile(p *models.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[KeyUserName] = p.Name
	s.values[KeyUserLocation] = p.Location
	s.values[KeyUserTimezone] = p.Timezone
	s.values[KeyUserLanguage] = p.PreferredLanguage
	s.values[KeyUserInterests] = strings.Join(p.StringList(models.PrefInterests), ", ")
	s.initialized = true
}

// StampTime records the current local time.
func (s *State) StampTime(now time.Time) {
	s.Set(KeyCurrentTime, now.Format("Monday, January 2, 2006 at 3:04 PM MST"))
}

// Store hands out session states by id.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore creates a store whose sessions expire after ttl of inactivity.
func NewStore(ttl time.Duration) *Store {
	return &Store{cache: cache.New(ttl, ttl/2+time.Minute), ttl: ttl}
}

// Resolve returns the session for id, creating one when id is empty, unknown,
// expired or owned by another user. created reports a fresh session.
func (st *Store) Resolve(id, userKey string) (state *State, created bool) {
	if id != "" {
		if v, ok := st.cache.Get(id); ok {
			if s := v.(*State); s.UserKey == userKey {
				// Sliding expiry.
				st.cache.Set(id, s, cache.DefaultExpiration)
				return s, false
			}
			id = ""
		}
	}
	if id == "" {
		id = uuid.New().String()
	}
	s := newState(id, userKey)
	st.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Get returns a live session without creating one.
func (st *Store) Get(id string) (*State, bool) {
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*State), true
}

// Count reports live sessions.
func (st *Store) Count() int {
	return st.cache.ItemCount()
}
