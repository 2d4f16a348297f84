package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	m := Message{
		"type":     "register1",
		"username": "alice",
		"count":    float64(3),
		"flag":     true,
		"nested":   map[string]any{"list": []any{float64(1), float64(2)}},
	}

	payload, err := m.Encode()
	require.NoError(t, err)

	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)

	// A JSON array is not a message.
	_, err = Decode([]byte(`[1,2,3]`))
	assert.Error(t, err)
}

func TestMessageAccessors(t *testing.T) {
	payload := []byte(`{"name":"bob","price":25,"ratio":1.5,"flag":true,"ids":[3,1,2]}`)
	m, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "bob", m.Str("name"))
	assert.Equal(t, "", m.Str("missing"))
	assert.Equal(t, "", m.Str("price"))

	price, ok := m.Int("price")
	assert.True(t, ok)
	assert.Equal(t, 25, price)

	_, ok = m.Int("ratio")
	assert.False(t, ok, "non-integral number is not an int")
	_, ok = m.Int("name")
	assert.False(t, ok)

	assert.True(t, m.Bool("flag"))
	assert.False(t, m.Bool("name"))

	assert.Equal(t, []int{3, 1, 2}, m.Ints("ids"))
	assert.Nil(t, m.Ints("name"))
	assert.True(t, m.Has("flag"))
	assert.False(t, m.Has("nope"))
}

func TestEnvelopes(t *testing.T) {
	assert.Equal(t, Message{"status": 1}, OK(nil))
	assert.Equal(t, Message{"status": 1, "password": "x"}, OK(Message{"password": "x"}))
	assert.Equal(t, Message{"status": 0, "error": "version-fail"}, Fail(ErrKindVersionFail))
}
