package protocol

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// envelope always produces identical bytes. Times are RFC 3339 text so
// sub-second precision survives.
var cborEncMode cbor.EncMode

// cborDecMode decodes any-typed maps as map[string]any, matching JSON.
// Unknown fields are ignored for forward compatibility.
var cborDecMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR is the binary codec.
var CBOR Codec = cborCodec{}

type cborCodec struct{}

type cborEnvelope struct {
	Type      Type            `cbor:"type"`
	RequestID string          `cbor:"requestId,omitempty"`
	Payload   cbor.RawMessage `cbor:"payload,omitempty"`
}

func (cborCodec) Encoding() Encoding { return EncodingCBOR }

func (cborCodec) Binary() bool { return true }

func (cborCodec) Encode(typ Type, requestID string, payload any) ([]byte, error) {
	env := struct {
		Type      Type   `cbor:"type"`
		RequestID string `cbor:"requestId,omitempty"`
		Payload   any    `cbor:"payload,omitempty"`
	}{typ, requestID, payload}
	data, err := cborEncMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return data, nil
}

func (cborCodec) Decode(data []byte) (Incoming, error) {
	var env cborEnvelope
	if err := cborDecMode.Unmarshal(data, &env); err != nil {
		return Incoming{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Incoming{}, errors.New("decode envelope: missing type")
	}
	payload := []byte(env.Payload)
	// 0xf6 is CBOR null.
	if len(payload) == 1 && payload[0] == 0xf6 {
		payload = nil
	}
	return Incoming{
		Type:      env.Type,
		RequestID: env.RequestID,
		payload:   payload,
		unmarshal: cborDecMode.Unmarshal,
	}, nil
}
