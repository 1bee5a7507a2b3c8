package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Coarse cache categories. A data type groups entries for TTL policy and
// bulk invalidation sweeps.
const (
	TypeDiscovery = "discovery"
	TypeUser      = "user"
	TypeStats     = "stats"
	TypeDynamic   = "dynamic"
)

// Entry is the envelope stored in both tiers. The data type and write
// timestamp travel with the value so invalidation never has to guess them
// from the key name.
type Entry struct {
	DataType  string          `json:"data_type"`
	Timestamp time.Time       `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

func (e *Entry) Decode(dest any) error {
	return json.Unmarshal(e.Value, dest)
}

// Manager is the two-tier cache facade. Writes go through both tiers;
// reads hit memory first and backfill it from Redis on a miss.
//
// The manager tracks every key it has set in an in-process registry so
// sweeps can enumerate keys per data type without the backing store
// supporting key listing.
type Manager struct {
	memory     *MemoryTier
	persistent Tier

	mu       sync.RWMutex
	ttls     map[string]time.Duration
	registry map[string]string // key -> data type

	hits   int64
	misses int64
}

func NewManager(memory *MemoryTier, persistent Tier) *Manager {
	return &Manager{
		memory:     memory,
		persistent: persistent,
		ttls: map[string]time.Duration{
			TypeDiscovery: 60 * time.Minute,
			TypeUser:      30 * time.Minute,
			TypeStats:     10 * time.Minute,
			TypeDynamic:   5 * time.Minute,
		},
		registry: make(map[string]string),
	}
}

// SetTTL overrides the expiry policy for one data type. Safe to call
// while reads and writes are in flight.
func (m *Manager) SetTTL(dataType string, ttl time.Duration) {
	m.mu.Lock()
	m.ttls[dataType] = ttl
	m.mu.Unlock()
}

func (m *Manager) ttlFor(dataType string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ttl, ok := m.ttls[dataType]; ok {
		return ttl
	}
	return m.ttls[TypeDynamic]
}

func (m *Manager) Memory() Tier     { return m.memory }
func (m *Manager) Persistent() Tier { return m.persistent }

// Get returns the entry for key, or nil on a miss. dataType selects the
// TTL used when backfilling the memory tier from Redis.
func (m *Manager) Get(ctx context.Context, key, dataType string) (*Entry, error) {
	if b, ok, err := m.memory.Get(ctx, key); err == nil && ok {
		m.countHit()
		return decodeEntry(b)
	}

	b, ok, err := m.persistent.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("persistent get %s: %w", key, err)
	}
	if !ok {
		m.countMiss()
		return nil, nil
	}

	// backfill so the next read stays in-process
	_ = m.memory.Set(ctx, key, b, m.ttlFor(dataType))
	m.countHit()
	return decodeEntry(b)
}

// Set writes value to both tiers and records the key in the registry.
func (m *Manager) Set(ctx context.Context, key string, value any, dataType string) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %s: %w", key, err)
	}

	entry := Entry{
		DataType:  dataType,
		Timestamp: time.Now().UTC(),
		Value:     raw,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry for %s: %w", key, err)
	}

	ttl := m.ttlFor(dataType)
	if err := m.memory.Set(ctx, key, b, ttl); err != nil {
		return fmt.Errorf("memory set %s: %w", key, err)
	}
	if err := m.persistent.Set(ctx, key, b, ttl); err != nil {
		return fmt.Errorf("persistent set %s: %w", key, err)
	}

	m.mu.Lock()
	m.registry[key] = dataType
	m.mu.Unlock()
	return nil
}

// Delete removes key from both tiers and the registry.
func (m *Manager) Delete(ctx context.Context, key string) error {
	memErr := m.memory.Delete(ctx, key)
	persErr := m.persistent.Delete(ctx, key)
	m.Unregister(key)

	if memErr != nil {
		return fmt.Errorf("memory delete %s: %w", key, memErr)
	}
	if persErr != nil {
		return fmt.Errorf("persistent delete %s: %w", key, persErr)
	}
	return nil
}

// AllKeys lists registered keys for one data type; empty dataType lists
// every key.
func (m *Manager) AllKeys(dataType string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.registry))
	for key, dt := range m.registry {
		if dataType == "" || dt == dataType {
			keys = append(keys, key)
		}
	}
	return keys
}

// DataTypeOf reports the registered data type for key.
func (m *Manager) DataTypeOf(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dt, ok := m.registry[key]
	return dt, ok
}

// Unregister drops key from the registry without touching the tiers.
// Invalidation calls this after issuing its own tier deletes.
func (m *Manager) Unregister(key string) {
	m.mu.Lock()
	delete(m.registry, key)
	m.mu.Unlock()
}

type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	MemorySize int   `json:"memory_size"`
	Tracked    int   `json:"tracked_keys"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	stats := Stats{
		Hits:    m.hits,
		Misses:  m.misses,
		Tracked: len(m.registry),
	}
	m.mu.RUnlock()
	stats.MemorySize = m.memory.Len()
	return stats
}

func (m *Manager) countHit() {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *Manager) countMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func decodeEntry(b []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(b, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}
