package protocol

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func framePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestFrameRoundTrip(t *testing.T) {
	client, server := framePair(t)

	payloads := [][]byte{
		[]byte(`{"status":1}`),
		[]byte(`{}`),
		[]byte(`{"nested":{"list":[1,2,3],"flag":true}}`),
		{},
	}

	for _, want := range payloads {
		go func() {
			_ = WriteFrame(client, want)
		}()
		got, err := ReadFrame(server)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadFrame_PartialPrefix(t *testing.T) {
	client, server := framePair(t)

	// Two bytes of the length prefix, then silence. The reader must
	// not treat them as a complete header.
	go client.Write([]byte{0x00, 0x00})

	start := time.Now()
	_, err := ReadFrame(server)
	assert.ErrorIs(t, err, ErrClosed)
	assert.GreaterOrEqual(t, time.Since(start), ControlTimeout-100*time.Millisecond)
}

func TestReadFrame_PeerGone(t *testing.T) {
	client, server := framePair(t)
	client.Close()

	_, err := ReadFrame(server)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReadGameFrame_Silence(t *testing.T) {
	_, server := framePair(t)

	start := time.Now()
	_, err := ReadGameFrame(server)
	assert.ErrorIs(t, err, ErrNoUpdate)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, GameHeaderTimeout-100*time.Millisecond)
	assert.Less(t, elapsed, GameHeaderTimeout+GameBodyTimeout)
}

func TestReadGameFrame_FaultMidBody(t *testing.T) {
	client, server := framePair(t)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 100)
		client.Write(header[:])
		client.Write([]byte("partial"))
		client.Close()
	}()

	_, err := ReadGameFrame(server)
	assert.ErrorIs(t, err, ErrConnLost)
}

func TestReadGameFrame_Delivers(t *testing.T) {
	client, server := framePair(t)

	go WriteFrame(client, []byte(`{"move":1}`))

	got, err := ReadGameFrame(server)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"move":1}`), got)
}

func TestReadFrame_RejectsOversized(t *testing.T) {
	client, server := framePair(t)

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
		client.Write(header[:])
	}()

	_, err := ReadFrame(server)
	assert.ErrorIs(t, err, ErrClosed)
}
