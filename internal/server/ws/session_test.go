package ws

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startSession(t *testing.T, r *Registry, keyID int, transport Transport) *Session {
	t.Helper()
	s, err := r.AddConnection(Identity{ConnectionID: "conn", Owner: "bot", KeyID: keyID}, transport)
	require.NoError(t, err)
	s.heartbeatEvery = 20 * time.Millisecond
	go s.Run()
	return s
}

func TestSessionDrainsQueueInOrder(t *testing.T) {
	r := NewRegistry(testLogger())
	transport := newFakeTransport()
	s := startSession(t, r, 1, transport)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Enqueue([]byte(fmt.Sprintf("frame-%d", i))))
	}

	waitFor(t, func() bool { return len(transport.written()) == 5 })
	for i, frame := range transport.written() {
		require.Equal(t, fmt.Sprintf("frame-%d", i), string(frame))
	}

	transport.Close()
	waitFor(t, func() bool { return s.State() == StateClosed })
}

func TestSessionTerminatesOnWriteFailure(t *testing.T) {
	r := NewRegistry(testLogger())
	transport := newFakeTransport()
	transport.failWrites = true
	s := startSession(t, r, 1, transport)

	require.NoError(t, s.Enqueue([]byte("doomed")))

	waitFor(t, func() bool { return s.State() == StateClosed })
	require.False(t, r.Connected(1))
	require.ErrorIs(t, s.Enqueue([]byte("late")), ErrSessionClosed)
}

func TestSessionTerminatesOnCloseFrame(t *testing.T) {
	r := NewRegistry(testLogger())
	transport := newFakeTransport()
	s := startSession(t, r, 1, transport)

	transport.inbound <- inboundFrame{kind: FrameClose}

	waitFor(t, func() bool { return s.State() == StateClosed })
	require.False(t, r.Connected(1))
}

func TestSessionIgnoresDataFrames(t *testing.T) {
	r := NewRegistry(testLogger())
	transport := newFakeTransport()
	s := startSession(t, r, 1, transport)

	transport.inbound <- inboundFrame{kind: FrameData, data: []byte("chatter")}
	transport.inbound <- inboundFrame{kind: FrameOther}

	time.Sleep(50 * time.Millisecond)
	require.NotEqual(t, StateClosed, s.State())

	transport.Close()
	waitFor(t, func() bool { return s.State() == StateClosed })
}

func TestSessionHeartbeatExhaustion(t *testing.T) {
	r := NewRegistry(testLogger())
	transport := newFakeTransport()
	s := startSession(t, r, 1, transport)

	// No pongs ever arrive: threshold intervals later the session
	// must tear itself down and deregister.
	waitFor(t, func() bool { return s.State() == StateClosed })
	require.False(t, r.Connected(1))
	require.GreaterOrEqual(t, transport.pings, MaxMissedHeartbeats)
}

func TestSessionHeartbeatResetKeepsAlive(t *testing.T) {
	r := NewRegistry(testLogger())
	transport := newFakeTransport()
	transport.pongOnPing = true
	s := startSession(t, r, 1, transport)

	// Well past the no-ack exhaustion point.
	time.Sleep(10 * s.heartbeatEvery)
	require.NotEqual(t, StateClosed, s.State())
	require.True(t, r.Connected(1))

	transport.Close()
	waitFor(t, func() bool { return s.State() == StateClosed })
}
