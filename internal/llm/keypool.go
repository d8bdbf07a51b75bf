package llm

import (
	"log"
	"strings"
	"sync"
	"time"
)

// KeyPool rotates API keys round-robin and parks keys that hit quota limits
// for a cooldown period.
type KeyPool struct {
	mu        sync.Mutex
	keys      []string
	next      int
	exhausted map[string]time.Time
	cooldown  time.Duration
	now       func() time.Time
}

// KeyStatus summarises pool health.
type KeyStatus struct {
	Total       int `json:"total"`
	Available   int `json:"available"`
	CoolingDown int `json:"cooling_down"`
}

// NewKeyPool creates a pool over keys. A non-positive cooldown defaults to one hour.
func NewKeyPool(keys []string, cooldown time.Duration) *KeyPool {
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &KeyPool{
		keys:      append([]string(nil), keys...),
		exhausted: make(map[string]time.Time),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

func (p *KeyPool) available(key string, now time.Time) bool {
	at, ok := p.exhausted[key]
	return !ok || now.Sub(at) > p.cooldown
}

// Next returns the next available key, or ErrNoKeys.
func (p *KeyPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", ErrNoKeys
	}
	now := p.now()
	for i := 0; i < len(p.keys); i++ {
		idx := (p.next + i) % len(p.keys)
		key := p.keys[idx]
		if p.available(key, now) {
			delete(p.exhausted, key)
			p.next = (idx + 1) % len(p.keys)
			return key, nil
		}
	}
	log.Printf("❌ [KEY-POOL] All %d keys exhausted", len(p.keys))
	return "", ErrNoKeys
}

// MarkExhausted parks key for the cooldown period.
func (p *KeyPool) MarkExhausted(key, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.exhausted[key] = p.now()
	avail := 0
	now := p.now()
	for _, k := range p.keys {
		if p.available(k, now) {
			avail++
		}
	}
	log.Printf("⚠️ [KEY-POOL] Key marked exhausted (%s), %d/%d still available", reason, avail, len(p.keys))
}

// Size is the number of keys in the pool.
func (p *KeyPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Status reports how many keys are usable right now.
func (p *KeyPool) Status() KeyStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := KeyStatus{Total: len(p.keys)}
	now := p.now()
	for _, k := range p.keys {
		if p.available(k, now) {
			st.Available++
		} else {
			st.CoolingDown++
		}
	}
	return st
}

// IsQuotaError reports whether err looks like a rate-limit or quota failure.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "resource_exhausted", "quota", "rate limit", "too many requests"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
