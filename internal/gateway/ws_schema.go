package gateway

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type wsSchemaRegistry struct {
	once    sync.Once
	initErr error
	message *jsonschema.Schema
	typed   map[string]*jsonschema.Schema
}

var wsSchemas wsSchemaRegistry

func initWSSchemas() error {
	wsSchemas.once.Do(func() {
		compiled, err := jsonschema.CompileString("ws_message", wsMessageSchema)
		if err != nil {
			wsSchemas.initErr = err
			return
		}
		wsSchemas.message = compiled

		typed := map[string]string{
			"heartbeat":       wsHeartbeatSchema,
			"sync_request":    wsSyncRequestSchema,
			"history_request": wsHistoryRequestSchema,
		}
		wsSchemas.typed = make(map[string]*jsonschema.Schema, len(typed))
		for name, schema := range typed {
			compiled, err := jsonschema.CompileString("ws_"+name, schema)
			if err != nil {
				wsSchemas.initErr = err
				return
			}
			wsSchemas.typed[name] = compiled
		}
	})
	return wsSchemas.initErr
}

// decodeClientFrame validates and decodes one inbound frame. A frame with
// no type must carry a message; typed frames are validated against their
// own schema.
func decodeClientFrame(raw []byte) (*wsFrame, error) {
	if err := initWSSchemas(); err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	var frame wsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, err
	}

	if frame.Type == "" {
		if err := wsSchemas.message.Validate(payload); err != nil {
			return nil, err
		}
		return &frame, nil
	}
	schema, ok := wsSchemas.typed[frame.Type]
	if !ok {
		return nil, fmt.Errorf("unknown frame type %q", frame.Type)
	}
	if err := schema.Validate(payload); err != nil {
		return nil, err
	}
	return &frame, nil
}

const wsMessageSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const wsHeartbeatSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "const": "heartbeat" }
  },
  "additionalProperties": true
}`

const wsSyncRequestSchema = `{
  "type": "object",
  "required": ["type", "lastMessageId"],
  "properties": {
    "type": { "const": "sync_request" },
    "lastMessageId": { "type": "string" },
    "timestamp": { "type": "string" }
  },
  "additionalProperties": true
}`

const wsHistoryRequestSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "const": "history_request" },
    "limit": { "type": "integer", "minimum": 1, "maximum": 500 }
  },
  "additionalProperties": true
}`
