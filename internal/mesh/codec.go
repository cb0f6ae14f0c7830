package mesh

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts envelopes to and from their wire representation.
type Codec interface {
	Name() string
	Marshal(env Envelope) ([]byte, error)
	Unmarshal(data []byte) (Envelope, error)
}

// NewCodec returns the codec registered under name ("json" or "cbor").
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("mesh: unknown codec %q", name)
	}
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(env Envelope) ([]byte, error) { return json.Marshal(env) }

func (JSONCodec) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("mesh: decode json envelope: %w", err)
	}
	if env.Topic == "" {
		return Envelope{}, fmt.Errorf("mesh: envelope without topic")
	}
	return env, nil
}

// CBORCodec is a compact binary alternative; payloads travel as byte strings
// holding the JSON value unchanged.
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(env Envelope) ([]byte, error) { return cbor.Marshal(env) }

func (CBORCodec) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("mesh: decode cbor envelope: %w", err)
	}
	if env.Topic == "" {
		return Envelope{}, fmt.Errorf("mesh: envelope without topic")
	}
	return env, nil
}
