package hass

import (
	"log/slog"
	"sort"
	"sync"
)

// StateCache is the in-memory mirror of Home Assistant state plus the
// entity and device registries. Every mutation, whether a bulk snapshot
// replacement after (re)connect or a single state_changed delta, is
// serialized through one lock; readers take the same lock and copy out
// what they need so no caller ever holds a reference into the maps.
type StateCache struct {
	mu       sync.RWMutex
	states   map[string]Entity
	byDomain map[string]map[string]struct{}
	entities map[string]RegistryEntry
	devices  map[string]DeviceEntry
	logger   *slog.Logger
}

// NewStateCache creates an empty cache.
func NewStateCache(logger *slog.Logger) *StateCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateCache{
		states:   make(map[string]Entity),
		byDomain: make(map[string]map[string]struct{}),
		entities: make(map[string]RegistryEntry),
		devices:  make(map[string]DeviceEntry),
		logger:   logger,
	}
}

// ReplaceStates swaps in a full state snapshot, discarding everything held
// before. Used after every successful (re)connect so stale state from the
// previous connection never survives.
func (c *StateCache) ReplaceStates(states []Entity) {
	fresh := make(map[string]Entity, len(states))
	domains := make(map[string]map[string]struct{})
	for _, entity := range states {
		domain, _, ok := splitEntityID(entity.EntityID)
		if !ok {
			c.logger.Warn("skipping malformed entity_id in snapshot", "entity_id", entity.EntityID)
			continue
		}
		fresh[entity.EntityID] = entity
		if domains[domain] == nil {
			domains[domain] = make(map[string]struct{})
		}
		domains[domain][entity.EntityID] = struct{}{}
	}

	c.mu.Lock()
	c.states = fresh
	c.byDomain = domains
	c.mu.Unlock()
}

// ApplyStateChanged applies a single state_changed delta. A nil newState
// removes the entity from the cache and its domain index.
func (c *StateCache) ApplyStateChanged(entityID string, newState *Entity) {
	domain, _, ok := splitEntityID(entityID)
	if !ok {
		c.logger.Warn("ignoring state_changed with malformed entity_id", "entity_id", entityID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if newState == nil {
		delete(c.states, entityID)
		if ids := c.byDomain[domain]; ids != nil {
			delete(ids, entityID)
			if len(ids) == 0 {
				delete(c.byDomain, domain)
			}
		}
		return
	}

	c.states[entityID] = *newState
	if c.byDomain[domain] == nil {
		c.byDomain[domain] = make(map[string]struct{})
	}
	c.byDomain[domain][entityID] = struct{}{}
}

// ReplaceEntityRegistry atomically replaces the entity registry.
func (c *StateCache) ReplaceEntityRegistry(entries []RegistryEntry) {
	fresh := make(map[string]RegistryEntry, len(entries))
	for _, entry := range entries {
		if entry.EntityID == "" {
			continue
		}
		fresh[entry.EntityID] = entry
	}
	c.mu.Lock()
	c.entities = fresh
	c.mu.Unlock()
}

// ReplaceDeviceRegistry atomically replaces the device registry.
func (c *StateCache) ReplaceDeviceRegistry(entries []DeviceEntry) {
	fresh := make(map[string]DeviceEntry, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		fresh[entry.ID] = entry
	}
	c.mu.Lock()
	c.devices = fresh
	c.mu.Unlock()
}

// GetState returns the cached state for an entity id.
func (c *StateCache) GetState(entityID string) (Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entity, ok := c.states[entityID]
	return entity, ok
}

// RegistryEntry returns the registry metadata for an entity id.
func (c *StateCache) RegistryEntry(entityID string) (RegistryEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entities[entityID]
	return entry, ok
}

// Device returns the device registry entry for a device id.
func (c *StateCache) Device(deviceID string) (DeviceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	device, ok := c.devices[deviceID]
	return device, ok
}

// Domain returns the sorted entity ids currently known in a domain.
func (c *StateCache) Domain(domain string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.byDomain[domain]))
	for id := range c.byDomain[domain] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of entities with cached state.
func (c *StateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.states)
}

// snapshot copies out everything the resolver needs for one search pass.
// Candidates are the union of entities with state and registry-only
// entities, so registry entries without a cached state stay searchable.
func (c *StateCache) snapshot() ([]candidate, map[string]DeviceEntry) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates := make([]candidate, 0, len(c.states)+len(c.entities))
	seen := make(map[string]struct{}, len(c.states))
	for id, entity := range c.states {
		state := entity
		cand := candidate{entityID: id, state: &state}
		if entry, ok := c.entities[id]; ok {
			cand.registry = &entry
		}
		candidates = append(candidates, cand)
		seen[id] = struct{}{}
	}
	for id, entry := range c.entities {
		if _, ok := seen[id]; ok {
			continue
		}
		registry := entry
		candidates = append(candidates, candidate{entityID: id, registry: &registry})
	}

	devices := make(map[string]DeviceEntry, len(c.devices))
	for id, device := range c.devices {
		devices[id] = device
	}
	return candidates, devices
}
