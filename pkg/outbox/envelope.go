package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultEnvelopeVersion = 1

var (
	ErrEnvelopeMalformed = errors.New("malformed outbox envelope")
	ErrEnvelopeEmpty     = errors.New("outbox envelope has no data")
)

// PayloadEnvelope wraps every payload stored in outbox_events and published to
// Pub/Sub. EventID doubles as the consumer dedupe key.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     string          `json:"source,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope marshals data under a fresh event id.
func NewEnvelope(source string, version int, occurredAt time.Time, data any) (PayloadEnvelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal envelope data: %w", err)
	}
	if version <= 0 {
		version = defaultEnvelopeVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Source:     source,
		Data:       raw,
	}, nil
}

// DecodeEnvelope parses body and rejects envelopes without an id or data.
func DecodeEnvelope(body []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrEnvelopeMalformed, err)
	}
	if env.EventID == "" {
		return env, fmt.Errorf("%w: missing eventId", ErrEnvelopeMalformed)
	}
	if env.Version <= 0 {
		env.Version = defaultEnvelopeVersion
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return env, ErrEnvelopeEmpty
	}
	return env, nil
}
