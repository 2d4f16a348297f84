package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	cmd, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Empty(t, cmd.name, "no arguments means usage, not an error")

	cmd, err = parseArgs([]string{"add", "alice", "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, command{name: "add", username: "alice", email: "a@example.com"}, cmd)

	_, err = parseArgs([]string{"add", "alice"})
	assert.Error(t, err, "add needs username and email")

	cmd, err = parseArgs([]string{"delete", "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", cmd.username)

	cmd, err = parseArgs([]string{"changepw", "alice"})
	require.NoError(t, err)
	assert.Empty(t, cmd.password, "omitted password is generated later")

	cmd, err = parseArgs([]string{"changepw", "alice", "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cmd.password)

	_, err = parseArgs([]string{"list", "extra"})
	assert.Error(t, err)

	_, err = parseArgs([]string{"frobnicate"})
	assert.Error(t, err)
}
