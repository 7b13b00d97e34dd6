// Package codec owns payload serialization.
//
// Ownership boundary:
// - binary encode/decode of arbitrary nested values
// - deterministic byte output for signing
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Core Deterministic Encoding: sorted map keys, smallest integer
	// encoding. The same logical payload always serializes to the same
	// bytes, which the signature layer depends on.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: encoder init: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// any-typed targets decode maps as map[string]any. Envelope
		// payloads have string keys only.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: decoder init: " + err.Error())
	}
}

// Marshal encodes v using deterministic encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded value. Consumers import only codec, not
// the CBOR library directly.
type RawMessage = cbor.RawMessage
