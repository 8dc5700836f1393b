package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Decode(b []byte) (Envelope, error) {
	var m Envelope
	if err := json.Unmarshal(b, &m); err != nil {
		return Envelope{}, err
	}
	if m.Type == "" {
		return Envelope{}, fmt.Errorf("missing type")
	}
	return m, nil
}

// DecodeData unmarshals the envelope payload into v. An absent payload leaves v untouched.
func DecodeData(env Envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}

func Encode(typ string, data any) ([]byte, error) {
	out := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: typ, Data: data}
	return json.Marshal(out)
}
