package outbox

import (
	"encoding/json"
	"time"
)

// SourceRef identifies the inbound webhook delivery that produced the event.
type SourceRef struct {
	Provider string `json:"provider"`
	EventID  string `json:"eventId"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     *SourceRef      `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}
