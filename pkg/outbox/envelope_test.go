package outbox

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewEnvelopeDefaultsVersion(t *testing.T) {
	occurred := time.Date(2026, 3, 2, 12, 0, 0, 0, time.FixedZone("PST", -8*3600))
	env, err := NewEnvelope("worker", 0, occurred, map[string]string{"order_id": "o-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Version != 1 || env.EventID == "" || env.Source != "worker" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected utc timestamp, got %s", env.OccurredAt.Location())
	}
	if string(env.Data) != `{"order_id":"o-1"}` {
		t.Fatalf("unexpected data %s", env.Data)
	}
}

func TestNewEnvelopeRejectsUnmarshalableData(t *testing.T) {
	if _, err := NewEnvelope("api", 1, time.Now(), make(chan int)); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	body, _ := json.Marshal(PayloadEnvelope{EventID: "evt-1", Data: json.RawMessage(`{"a":1}`)})
	env, err := DecodeEnvelope(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Version != 1 || env.EventID != "evt-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	cases := map[string]struct {
		body []byte
		want error
	}{
		"not json":  {body: []byte("{"), want: ErrEnvelopeMalformed},
		"no id":     {body: []byte(`{"version":1,"data":{}}`), want: ErrEnvelopeMalformed},
		"null data": {body: []byte(`{"eventId":"e","data":null}`), want: ErrEnvelopeEmpty},
		"no data":   {body: []byte(`{"eventId":"e"}`), want: ErrEnvelopeEmpty},
	}
	for name, tc := range cases {
		if _, err := DecodeEnvelope(tc.body); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}
