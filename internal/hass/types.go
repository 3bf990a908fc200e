// Package hass maintains the Home Assistant connection: a reconnecting,
// authenticated WebSocket client, the in-memory state cache it feeds, and
// the scored entity resolver used to translate fuzzy natural-language
// references into canonical entity ids.
package hass

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Entity is one Home Assistant entity state.
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed,omitempty"`
}

// Domain returns the domain part of the entity id (before the dot).
func (e Entity) Domain() string {
	domain, _, _ := splitEntityID(e.EntityID)
	return domain
}

// FriendlyName returns the friendly_name attribute, if present.
func (e Entity) FriendlyName() string {
	name, _ := e.Attributes["friendly_name"].(string)
	return name
}

// DeviceClass returns the device_class attribute, if present.
func (e Entity) DeviceClass() string {
	class, _ := e.Attributes["device_class"].(string)
	return class
}

func splitEntityID(entityID string) (domain, slug string, ok bool) {
	domain, slug, ok = strings.Cut(entityID, ".")
	if !ok || domain == "" || slug == "" {
		return "", "", false
	}
	return domain, slug, true
}

// RegistryEntry is per-entity registry metadata.
type RegistryEntry struct {
	EntityID       string   `json:"entity_id"`
	Name           string   `json:"name,omitempty"`
	OriginalName   string   `json:"original_name,omitempty"`
	Area           string   `json:"area_id,omitempty"`
	DeviceID       string   `json:"device_id,omitempty"`
	EntityCategory string   `json:"entity_category,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	Platform       string   `json:"platform,omitempty"`
}

// DeviceEntry is per-device registry metadata.
type DeviceEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	NameByUser   string `json:"name_by_user,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
	Area         string `json:"area_id,omitempty"`
	ViaDeviceID  string `json:"via_device_id,omitempty"`
}

// DisplayName prefers the user-assigned device name.
func (d DeviceEntry) DisplayName() string {
	if d.NameByUser != "" {
		return d.NameByUser
	}
	return d.Name
}

// Subscription records one active event subscription; the id is the
// message id used to subscribe.
type Subscription struct {
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
}

// frame is the inbound wire shape shared by all HA WebSocket messages.
type frame struct {
	ID        int64           `json:"id,omitempty"`
	Type      string          `json:"type"`
	Success   *bool           `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *frameError     `json:"error,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	HAVersion string          `json:"ha_version,omitempty"`
}

type frameError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *frameError) String() string {
	if e == nil {
		return "unknown error"
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// stateChange is the payload of a state_changed event. A null new_state
// means the entity was removed.
type stateChange struct {
	EntityID string  `json:"entity_id"`
	NewState *Entity `json:"new_state"`
	OldState *Entity `json:"old_state"`
}

type eventEnvelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// Wire message type constants. Outbound types mirror the HA WebSocket API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgEvent        = "event"
	msgPong         = "pong"

	msgSubscribeEvents          = "subscribe_events"
	msgGetStates                = "get_states"
	msgEntityRegistryList       = "config/entity_registry/list"
	msgEntityRegistryForDisplay = "config/entity_registry/list_for_display"
	msgDeviceRegistryList       = "config/device_registry/list"
	msgCallService              = "call_service"

	eventStateChanged = "state_changed"
)

// ValidateEntityID checks the <domain>.<slug> form.
func ValidateEntityID(entityID string) error {
	if _, _, ok := splitEntityID(entityID); !ok {
		return fmt.Errorf("invalid entity_id %q: expected <domain>.<slug>", entityID)
	}
	return nil
}
