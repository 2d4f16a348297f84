package protocol

import (
	"encoding/json"
	"fmt"
	"math"
)

// Message is one wire payload: a JSON object with string keys.
// Values survive a decode/encode round trip byte-for-byte equal in
// content (JSON is self-describing; nothing language-specific leaks
// onto the wire).
type Message map[string]any

// Encode serializes the message to its wire payload.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

// Decode parses a wire payload into a Message.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	return m, nil
}

// Str returns the string under key, or "" when absent or not a string.
func (m Message) Str(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int returns the integer under key. JSON numbers decode as float64.
func (m Message) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case int:
		return v, true
	}
	return 0, false
}

// Bool returns the boolean under key, false when absent.
func (m Message) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Has reports whether key is present.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Ints returns the list of integers under key, nil if absent or malformed.
func (m Message) Ints(key string) []int {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, int(f))
	}
	return out
}

// Status reply helpers. Every request/response flow answers with a
// {status, error?} envelope.

// OK builds a {status:1} reply with optional extra fields.
func OK(extra Message) Message {
	m := Message{"status": 1}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// Fail builds a {status:0, error:kind} reply.
func Fail(kind string) Message {
	return Message{"status": 0, "error": kind}
}
