package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/outbox"
)

// DecoderFunc turns an envelope's data into a typed payload.
type DecoderFunc func(payload json.RawMessage) (interface{}, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecoderFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecoderFunc)}
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecoderFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

// DecodeMessage unwraps a published envelope and decodes its data.
func (r *DecoderRegistry) DecodeMessage(eventType enums.OutboxEventType, body []byte) (outbox.PayloadEnvelope, interface{}, error) {
	envelope, err := outbox.DecodeEnvelope(body)
	if err != nil {
		return envelope, nil, err
	}
	payload, err := r.Decode(eventType, envelope.Version, envelope.Data)
	return envelope, payload, err
}

// JSONDecoder builds a DecoderFunc for payload type T.
func JSONDecoder[T any]() DecoderFunc {
	return func(payload json.RawMessage) (interface{}, error) {
		var decoded T
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return nil, err
		}
		return &decoded, nil
	}
}
