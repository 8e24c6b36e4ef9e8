package webhooks

import (
	"encoding/json"
	"fmt"
	"time"
)

// VerifiedEvent is an inbound event whose signature has been checked. The
// fields are unexported so the only way to obtain one is through a Verifier
// in this package operating on the raw request bytes.
type VerifiedEvent struct {
	provider   string
	id         string
	rawType    string
	kind       EventKind
	created    time.Time
	livemode   bool
	apiVersion string
	object     json.RawMessage
	fields     map[string]any
	receivedAt time.Time
	verified   bool
}

func (e *VerifiedEvent) Provider() string      { return e.provider }
func (e *VerifiedEvent) ID() string            { return e.id }
func (e *VerifiedEvent) Type() string          { return e.rawType }
func (e *VerifiedEvent) Kind() EventKind       { return e.kind }
func (e *VerifiedEvent) Livemode() bool        { return e.livemode }
func (e *VerifiedEvent) APIVersion() string    { return e.apiVersion }
func (e *VerifiedEvent) ReceivedAt() time.Time { return e.receivedAt }

// Created is the processor's event timestamp. Handlers store it as the
// version of the record they write so late deliveries cannot regress state.
func (e *VerifiedEvent) Created() time.Time { return e.created }

// SignatureValid is always true for events produced by a Verifier.
func (e *VerifiedEvent) SignatureValid() bool { return e != nil && e.verified }

// Object returns a copy of the raw JSON of the event's data object.
func (e *VerifiedEvent) Object() json.RawMessage {
	out := make(json.RawMessage, len(e.object))
	copy(out, e.object)
	return out
}

// Decode unmarshals the event's data object into dst.
func (e *VerifiedEvent) Decode(dst any) error {
	if len(e.object) == 0 {
		return fmt.Errorf("event %s has no data object", e.id)
	}
	if err := json.Unmarshal(e.object, dst); err != nil {
		return fmt.Errorf("decode %s object: %w", e.rawType, err)
	}
	return nil
}

// Field walks nested keys of the data object and returns the string form of
// the value found, or "" when any step is missing.
func (e *VerifiedEvent) Field(keys ...string) string {
	var current any = e.fields
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[key]
		if !ok || current == nil {
			return ""
		}
	}
	switch v := current.(type) {
	case string:
		return v
	case map[string]any, []any:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
