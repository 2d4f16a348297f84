package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeTable_SetGetDelete(t *testing.T) {
	tbl := NewCodeTable()

	_, ok := tbl.Get("alice")
	assert.False(t, ok)

	tbl.Set("alice", "ab12")
	code, ok := tbl.Get("alice")
	assert.True(t, ok)
	assert.Equal(t, "ab12", code)

	// A second Set replaces the first code.
	tbl.Set("alice", "cd34")
	code, _ = tbl.Get("alice")
	assert.Equal(t, "cd34", code)

	tbl.Delete("alice")
	_, ok = tbl.Get("alice")
	assert.False(t, ok)
}

func TestCodeTable_Expiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	tbl := newCodeTable(30*time.Minute, clock)

	tbl.Set("alice", "ab12")

	now = now.Add(29 * time.Minute)
	_, ok := tbl.Get("alice")
	assert.True(t, ok, "code still valid before the TTL")

	now = now.Add(2 * time.Minute)
	_, ok = tbl.Get("alice")
	assert.False(t, ok, "code expired after 30 minutes")
	assert.Equal(t, 0, tbl.Len(), "expired entry dropped on Get")
}

func TestCodeTable_CleanExpired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	tbl := newCodeTable(30*time.Minute, clock)

	tbl.Set("old", "aaaa")
	now = now.Add(31 * time.Minute)
	tbl.Set("fresh", "bbbb")

	tbl.CleanExpired()
	assert.Equal(t, 1, tbl.Len())
	_, ok := tbl.Get("fresh")
	assert.True(t, ok)
}
