package hass

import (
	"sort"
	"strings"
)

// SearchResult is one scored match from the entity resolver.
type SearchResult struct {
	EntityID     string  `json:"entity_id"`
	Score        float64 `json:"score"`
	FriendlyName string  `json:"friendly_name,omitempty"`
	Area         string  `json:"area,omitempty"`
	DeviceName   string  `json:"device_name,omitempty"`
	State        *string `json:"state,omitempty"`
}

// candidate pairs an entity id with whichever of state and registry entry
// the cache holds for it.
type candidate struct {
	entityID string
	state    *Entity
	registry *RegistryEntry
}

// Search scores every cached entity against the query and returns matches
// with score > 0, sorted by score descending then friendly name ascending.
// An empty query with a domain enumerates that domain at score 1. The
// domain filter restricts candidates to ids starting with "<domain>.".
func (c *StateCache) Search(query, domain string) []SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	domain = strings.ToLower(strings.TrimSpace(domain))

	candidates, devices := c.snapshot()

	var results []SearchResult
	for _, cand := range candidates {
		if domain != "" && !strings.HasPrefix(cand.entityID, domain+".") {
			continue
		}
		fields := newScoreFields(cand, devices)
		var score float64
		switch {
		case query == "" && domain == "":
			continue
		case query == "":
			score = 1
		default:
			score = fields.score(query)
		}
		if score <= 0 {
			continue
		}
		result := SearchResult{
			EntityID:     cand.entityID,
			Score:        score,
			FriendlyName: fields.displayName,
			Area:         fields.area,
			DeviceName:   fields.device,
		}
		if cand.state != nil {
			state := cand.state.State
			result.State = &state
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].FriendlyName != results[j].FriendlyName {
			return results[i].FriendlyName < results[j].FriendlyName
		}
		return results[i].EntityID < results[j].EntityID
	})
	return results
}

// scoreFields holds the lowercased searchable fields of one candidate.
// displayName keeps original casing for presentation and sorting.
type scoreFields struct {
	entityID     string
	domain       string
	slug         string
	friendly     string
	registryName string
	area         string
	device       string
	deviceClass  string
	manufacturer string
	model        string
	aliases      []string
	displayName  string
}

func newScoreFields(cand candidate, devices map[string]DeviceEntry) scoreFields {
	f := scoreFields{entityID: strings.ToLower(cand.entityID)}
	f.domain, f.slug, _ = splitEntityID(f.entityID)

	if cand.state != nil {
		f.displayName = cand.state.FriendlyName()
		f.friendly = strings.ToLower(f.displayName)
		f.deviceClass = strings.ToLower(cand.state.DeviceClass())
	}
	if cand.registry != nil {
		name := cand.registry.Name
		if name == "" {
			name = cand.registry.OriginalName
		}
		f.registryName = strings.ToLower(name)
		if f.displayName == "" {
			f.displayName = name
		}
		f.area = strings.ToLower(cand.registry.Area)
		for _, alias := range cand.registry.Aliases {
			f.aliases = append(f.aliases, strings.ToLower(alias))
		}
		if device, ok := devices[cand.registry.DeviceID]; ok {
			f.device = strings.ToLower(device.DisplayName())
			f.manufacturer = strings.ToLower(device.Manufacturer)
			f.model = strings.ToLower(device.Model)
			if f.area == "" {
				f.area = strings.ToLower(device.Area)
			}
		}
	}
	return f
}

// score applies the resolver's rules and returns the maximum. Exact and
// substring rules are strictly max-style; only the token rule stacks its
// own field bonuses on top of the coverage ratio.
func (f scoreFields) score(query string) float64 {
	best := 0.0
	rule := func(score float64, matched bool) {
		if matched && score > best {
			best = score
		}
	}

	rule(100, f.entityID == query)
	rule(90, f.friendly == query)
	rule(88, f.registryName == query)
	rule(85, f.area == query)
	rule(83, f.device == query)
	rule(80, f.slug == query)
	rule(75, f.manufacturer == query)
	rule(72, f.model == query)

	rule(70, strings.Contains(f.entityID, query))
	rule(65, f.friendly != "" && strings.Contains(f.friendly, query))
	rule(64, f.registryName != "" && strings.Contains(f.registryName, query))
	rule(62, f.area != "" && strings.Contains(f.area, query))
	rule(60, f.deviceClass != "" && strings.Contains(f.deviceClass, query))
	rule(60, f.device != "" && strings.Contains(f.device, query))
	rule(55, f.manufacturer != "" && strings.Contains(f.manufacturer, query))
	rule(53, f.model != "" && strings.Contains(f.model, query))

	tokens := strings.Fields(query)
	rule(f.tokenScore(tokens), len(tokens) > 0)

	words := f.words()
	rule(20, containsAnyWord(words, query))
	for _, token := range tokens {
		rule(15, containsAnyWord(words, token))
	}
	return best
}

// tokenScore is coverage over the query tokens, scaled to 50, plus fixed
// bonuses for which fields the matched tokens landed in.
func (f scoreFields) tokenScore(tokens []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	haystack := f.haystack()
	matched := 0
	var inFriendly, inArea, inDevice, inDomain bool
	for _, token := range tokens {
		if !strings.Contains(haystack, token) {
			continue
		}
		matched++
		inFriendly = inFriendly || (f.friendly != "" && strings.Contains(f.friendly, token))
		inArea = inArea || (f.area != "" && strings.Contains(f.area, token))
		inDevice = inDevice || (f.device != "" && strings.Contains(f.device, token))
		inDomain = inDomain || strings.Contains(f.domain, token)
	}
	if matched == 0 {
		return 0
	}
	score := float64(matched) / float64(len(tokens)) * 50
	if inFriendly {
		score += 10
	}
	if inArea {
		score += 8
	}
	if inDevice {
		score += 7
	}
	if inDomain {
		score += 5
	}
	return score
}

func (f scoreFields) haystack() string {
	parts := []string{
		f.entityID, f.friendly, f.registryName, f.area,
		f.device, f.deviceClass, f.manufacturer, f.model,
	}
	parts = append(parts, f.aliases...)
	return strings.Join(parts, " ")
}

// words splits every searchable field into individual words so short
// queries can still hit the middle of compound names.
func (f scoreFields) words() []string {
	var words []string
	for _, part := range strings.FieldsFunc(f.haystack(), func(r rune) bool {
		return r == ' ' || r == '.' || r == '_' || r == '-'
	}) {
		if part != "" {
			words = append(words, part)
		}
	}
	return words
}

func containsAnyWord(words []string, needle string) bool {
	if needle == "" {
		return false
	}
	for _, word := range words {
		if strings.Contains(word, needle) {
			return true
		}
	}
	return false
}
