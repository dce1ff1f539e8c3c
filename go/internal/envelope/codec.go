// Package envelope implements the text-safe payload encoding used on the
// relay and the relay's wire wrapper types.
//
// Payloads are JSON-marshalled and the resulting UTF-8 bytes are base64
// encoded, so arbitrary Unicode survives a relay that only accepts opaque
// text messages.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("decode envelope message")

// DecodeError reports which step of decoding failed.
type DecodeError struct {
	Stage string // "base64" or "json"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope message (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Encode marshals payload to JSON and returns the base64 of its bytes.
func Encode(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode reverses Encode and returns the payload as raw JSON.
func Decode(text string) (json.RawMessage, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: err}
	}
	if !json.Valid(data) {
		return nil, &DecodeError{Stage: "json", Err: errors.New("invalid JSON payload")}
	}
	return json.RawMessage(data), nil
}

// DecodeInto decodes text and unmarshals the payload into v.
func DecodeInto(text string, v any) error {
	raw, err := Decode(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Stage: "json", Err: err}
	}
	return nil
}
