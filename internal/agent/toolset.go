package agent

import (
	"sort"
	"sync"

	"github.com/hearthd/hearth/internal/fault"
)

// Library groups tools into named toolsets. Toolset membership is fixed at
// build time; agents are configured with the union of selected toolsets.
type Library struct {
	mu   sync.RWMutex
	sets map[string][]Tool
}

// NewLibrary creates an empty toolset library.
func NewLibrary() *Library {
	return &Library{sets: make(map[string][]Tool)}
}

// Add registers tools under a toolset name, appending to any existing set.
func (l *Library) Add(name string, tools ...Tool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sets[name] = append(l.sets[name], tools...)
}

// Union resolves the ordered union of the named toolsets, deduplicating by
// tool name while preserving first-seen order.
func (l *Library) Union(names ...string) ([]Tool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Tool
	seen := map[string]bool{}
	for _, name := range names {
		set, ok := l.sets[name]
		if !ok {
			return nil, fault.New(fault.UnknownResource, "unknown toolset %q", name)
		}
		for _, tool := range set {
			if seen[tool.Name()] {
				continue
			}
			seen[tool.Name()] = true
			out = append(out, tool)
		}
	}
	return out, nil
}

// Names returns the registered toolset names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.sets))
	for name := range l.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
