package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Encoding names a wire encoding.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// ErrMissingPayload is returned by Incoming.Decode when the frame had none.
var ErrMissingPayload = errors.New("message has no payload")

// Codec frames envelopes in one encoding.
type Codec interface {
	// Encoding names the codec.
	Encoding() Encoding

	// Binary reports whether frames go out as binary websocket messages.
	Binary() bool

	// Encode serializes an envelope.
	Encode(typ Type, requestID string, payload any) ([]byte, error)

	// Decode parses an envelope, leaving the payload undecoded.
	Decode(data []byte) (Incoming, error)
}

// Incoming is a received envelope whose payload has not been decoded yet.
type Incoming struct {
	Type      Type
	RequestID string

	payload   []byte
	unmarshal func([]byte, any) error
}

// Decode unmarshals the payload into v.
func (m Incoming) Decode(v any) error {
	if len(m.payload) == 0 {
		return ErrMissingPayload
	}
	if err := m.unmarshal(m.payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

// Lookup returns the codec for name; the empty string selects JSON.
func Lookup(name string) (Codec, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case "", EncodingJSON:
		return JSON, nil
	case EncodingCBOR:
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q: must be json or cbor", name)
	}
}

// JSON is the default codec: text frames.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

type jsonEnvelope struct {
	Type      Type            `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (jsonCodec) Encoding() Encoding { return EncodingJSON }

func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(typ Type, requestID string, payload any) ([]byte, error) {
	env := struct {
		Type      Type   `json:"type"`
		RequestID string `json:"requestId,omitempty"`
		Payload   any    `json:"payload,omitempty"`
	}{typ, requestID, payload}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Incoming, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Incoming{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Incoming{}, errors.New("decode envelope: missing type")
	}
	payload := []byte(env.Payload)
	if string(payload) == "null" {
		payload = nil
	}
	return Incoming{
		Type:      env.Type,
		RequestID: env.RequestID,
		payload:   payload,
		unmarshal: json.Unmarshal,
	}, nil
}
