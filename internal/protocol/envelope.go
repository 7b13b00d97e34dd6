package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/wirerpc/internal/codec"
)

// Envelope kinds.
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindError    = "error"
)

// Error-body reasons carried by KindError envelopes.
const (
	ReasonApplication = "application"
	ReasonAuth        = "auth"
	ReasonInternal    = "internal"
)

var (
	ErrMalformed   = errors.New("protocol: malformed envelope")
	ErrInvalidKind = errors.New("protocol: invalid envelope kind")
	ErrIDMismatch  = errors.New("protocol: response id does not match request id")
)

// Envelope is one wire message. Sig is present iff a shared secret is
// configured and covers the encoded Payload bytes only.
type Envelope struct {
	ID      uint64           `cbor:"id"`
	Kind    string           `cbor:"kind"`
	Payload codec.RawMessage `cbor:"payload"`
	Sig     []byte           `cbor:"sig,omitempty"`
}

// ErrorBody is the payload of a KindError envelope.
type ErrorBody struct {
	Reason  string `cbor:"reason"`
	Message string `cbor:"message"`
}

func validKind(kind string) bool {
	switch kind {
	case KindRequest, KindResponse, KindError:
		return true
	}
	return false
}

// NewEnvelope encodes payload and wraps it with id and kind.
func NewEnvelope(id uint64, kind string, payload any) (Envelope, error) {
	if !validKind(kind) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	body, err := codec.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode payload: %w", err)
	}
	return Envelope{ID: id, Kind: kind, Payload: body}, nil
}

// NewErrorEnvelope builds a KindError envelope for one failed exchange.
func NewErrorEnvelope(id uint64, reason, message string) (Envelope, error) {
	return NewEnvelope(id, KindError, ErrorBody{Reason: reason, Message: message})
}

// EncodeEnvelope serializes env into frame-body bytes.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if !validKind(env.Kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, env.Kind)
	}
	body, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode envelope: %w", err)
	}
	return body, nil
}

// DecodeEnvelope parses frame-body bytes into an Envelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !validKind(env.Kind) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrInvalidKind, env.Kind)
	}
	if len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	return env, nil
}

// DecodePayload decodes the envelope payload into a generic value.
func DecodePayload(env Envelope) (any, error) {
	var out any
	if err := codec.Unmarshal(env.Payload, &out); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
	}
	return out, nil
}

// DecodeErrorBody decodes the payload of a KindError envelope.
func DecodeErrorBody(env Envelope) (ErrorBody, error) {
	var body ErrorBody
	if err := codec.Unmarshal(env.Payload, &body); err != nil {
		return ErrorBody{}, fmt.Errorf("%w: error body: %v", ErrMalformed, err)
	}
	return body, nil
}
