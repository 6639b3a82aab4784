package net

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcx/nexus/metrics"
)

func TestEndpointHandshakeEmitsConnected(t *testing.T) {
	h := newHarness(t)
	_, _, id := h.connect(4242)

	// The change was consumed by connect; the queue must now be empty.
	assert.Empty(t, h.ep.Changes())
	assert.NotNil(t, h.ep.connected(id))
}

func TestEndpointRejectsExpiredToken(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{}
	codec := NewClientCodec(h.key, h.cfg.MaxFrameSize)
	expired := SealToken(h.key, h.cfg.Protocol, h.cfg.Version,
		uint64(h.now.Add(-time.Minute).Unix()), 7, PrivateData{ClientID: 1})
	conn.in.Write(codec.EncodeToken(expired))
	h.listener.stage(conn)

	h.ep.Sync(h.now)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonRejected, changes[0].Reason)
	assert.Zero(t, changes[0].ClientID, "a rejected token never yields an identity")
	assert.True(t, conn.closed)

	frames := drainFrames(t, codec, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, ClassDisconnect, frames[0].Class)
	assert.Equal(t, ReasonRejected, DisconnectReason(frames[0].Body[0]))
}

func TestEndpointRejectsGarbageFirstFrame(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{}
	conn.in.Write([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"))
	h.listener.stage(conn)

	h.ep.Sync(h.now)

	assert.True(t, conn.closed)
	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonCorruption, changes[0].Reason)
	assert.Zero(t, changes[0].ClientID)
}

func TestEndpointPullDeliversMessagesInOrder(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	frame, err := codec.EncodePayload(
		&moveMsg{Op: 1, X: 10, Y: 10},
		&moveMsg{Op: 2, X: 20, Y: 20},
		&moveMsg{Op: 3, X: 30, Y: 30},
	)
	require.NoError(t, err)
	conn.in.Write(frame)

	h.advance(10 * time.Millisecond)
	h.ep.Sync(h.now)

	batch := NewPayloadBatch(newMoveMsg)
	require.NoError(t, h.ep.Pull(id, batch))
	require.Equal(t, 3, batch.Len())
	for i, want := range []uint32{1, 2, 3} {
		assert.Equal(t, want, batch.Messages()[i].(*moveMsg).Op)
	}

	assert.ErrorIs(t, h.ep.Pull(id, batch), ErrWait, "no further payload this tick")
}

func TestEndpointPullSkipsKeepalives(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	conn.in.Write(codec.EncodeKeepalive())
	frame, err := codec.EncodePayload(&moveMsg{Op: 9})
	require.NoError(t, err)
	conn.in.Write(frame)

	h.ep.Sync(h.now)

	batch := NewPayloadBatch(newMoveMsg)
	require.NoError(t, h.ep.Pull(id, batch))
	require.Equal(t, 1, batch.Len())
	assert.Equal(t, uint32(9), batch.Messages()[0].(*moveMsg).Op)
}

func TestEndpointPullUnknownChannel(t *testing.T) {
	h := newHarness(t)
	batch := NewPayloadBatch(newMoveMsg)
	assert.ErrorIs(t, h.ep.Pull(3, batch), ErrUnknownChannel)
}

func TestEndpointPeerShutdownEmitsDisconnected(t *testing.T) {
	h := newHarness(t)
	conn, _, id := h.connect(4242)

	conn.readErr = io.EOF
	h.advance(10 * time.Millisecond)
	h.ep.Sync(h.now)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, id, changes[0].Channel)
	assert.Equal(t, uint64(4242), changes[0].ClientID)
	assert.Equal(t, ReasonIoFailure, changes[0].Reason)

	// Exactly once: further syncs must not repeat the event.
	h.ep.Sync(h.now)
	assert.Empty(t, h.ep.Changes())
	assert.Nil(t, h.ep.connected(id))
}

func TestEndpointPeerDisconnectFrame(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	conn.in.Write(codec.EncodeDisconnect(ReasonRequested))
	h.ep.Sync(h.now)

	batch := NewPayloadBatch(newMoveMsg)
	err := h.ep.Pull(id, batch)
	fe, ok := IsFatal(err)
	require.True(t, ok)
	assert.Equal(t, KindRequested, fe.Kind)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonRequested, changes[0].Reason)
}

func TestEndpointCorruptFrameTearsDown(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	frame, err := codec.EncodePayload(&moveMsg{Op: 1})
	require.NoError(t, err)
	frame[HeaderSize+2] ^= 0x40
	conn.in.Write(frame)

	h.ep.Sync(h.now)
	batch := NewPayloadBatch(newMoveMsg)
	err = h.ep.Pull(id, batch)
	fe, ok := IsFatal(err)
	require.True(t, ok)
	assert.Equal(t, KindCorruption, fe.Kind)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonCorruption, changes[0].Reason)
}

func TestEndpointHandshakeTimeout(t *testing.T) {
	h := newHarness(t)
	conn := &fakeConn{}
	h.listener.stage(conn)
	h.ep.Sync(h.now)
	assert.False(t, conn.closed)

	h.advance(h.cfg.HandshakeTimeout + time.Second)
	h.ep.Sync(h.now)

	assert.True(t, conn.closed)
	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonHandshakeTimeout, changes[0].Reason)
	assert.Zero(t, changes[0].ClientID, "the channel never produced an identity")

	// Exactly once, and the slot must be reusable.
	h.advance(time.Millisecond)
	h.ep.Sync(h.now)
	assert.Empty(t, h.ep.Changes())
	_, _, _ = h.connect(1)
}

func TestEndpointIdleTimeout(t *testing.T) {
	h := newHarness(t)
	conn, codec, _ := h.connect(4242)

	h.advance(h.cfg.IdleTimeout + time.Second)
	h.ep.Sync(h.now)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonIdleTimeout, changes[0].Reason)
	assert.True(t, conn.closed)

	frames := drainFrames(t, codec, conn)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, ClassDisconnect, last.Class)
	assert.Equal(t, ReasonIdleTimeout, DisconnectReason(last.Body[0]))
}

func TestEndpointKeepaliveCadence(t *testing.T) {
	h := newHarness(t)
	conn, codec, _ := h.connect(4242)
	drainFrames(t, codec, conn)

	// Outbound silence past the interval: exactly one keepalive, even
	// across several syncs within the same interval.
	h.advance(h.cfg.KeepaliveInterval)
	h.ep.Sync(h.now)
	h.advance(time.Millisecond)
	h.ep.Sync(h.now)
	h.advance(time.Millisecond)
	h.ep.Sync(h.now)

	frames := drainFrames(t, codec, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, ClassKeepalive, frames[0].Class)

	// The next interval elapses: one more.
	h.advance(h.cfg.KeepaliveInterval)
	h.ep.Sync(h.now)
	frames = drainFrames(t, codec, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, ClassKeepalive, frames[0].Class)
}

func TestEndpointKeepalivePreventsIdleDisconnect(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	// The client keeps the link warm with keepalives only.
	step := h.cfg.IdleTimeout / 2
	for i := 0; i < 4; i++ {
		h.advance(step)
		conn.in.Write(codec.EncodeKeepalive())
		h.ep.Sync(h.now)
	}
	assert.Empty(t, h.ep.Changes())
	assert.NotNil(t, h.ep.connected(id))
}

func TestEndpointPushReachesClient(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	batch := NewPayloadBatch(nil)
	batch.Add(&moveMsg{Op: 5, X: 1, Y: 2})
	require.NoError(t, h.ep.Push(id, batch))
	assert.Equal(t, 0, batch.Len())

	frames := drainFrames(t, codec, conn)
	require.Len(t, frames, 1)
	require.Equal(t, ClassPayload, frames[0].Class)

	in := NewPayloadBatch(newMoveMsg)
	require.NoError(t, in.decode(NewReader(frames[0].Body)))
	require.Equal(t, 1, in.Len())
	assert.Equal(t, uint32(5), in.Messages()[0].(*moveMsg).Op)
}

// recordFunc adapts a function to the Replicator seam.
type recordFunc func(clientID uint64, batch *PayloadBatch)

func (f recordFunc) Record(clientID uint64, batch *PayloadBatch) {
	f(clientID, batch)
}

func TestEndpointReplicateIsolatesClients(t *testing.T) {
	h := newHarness(t)
	connA, codecA, _ := h.connect(1)
	connB, codecB, _ := h.connect(2)

	var batches []*PayloadBatch
	h.ep.Replicate(recordFunc(func(clientID uint64, batch *PayloadBatch) {
		batches = append(batches, batch)
		require.Equal(t, 0, batch.Len(), "batch must arrive clean for every client")
		batch.Add(&moveMsg{Op: uint32(clientID)})
	}))

	require.Len(t, batches, 2)
	assert.Same(t, batches[0], batches[1], "one batch is reused across clients")

	for _, tc := range []struct {
		conn  *fakeConn
		codec *ClientCodec
		want  uint32
	}{
		{connA, codecA, 1},
		{connB, codecB, 2},
	} {
		frames := drainFrames(t, tc.codec, tc.conn)
		require.Len(t, frames, 1)
		in := NewPayloadBatch(newMoveMsg)
		require.NoError(t, in.decode(NewReader(frames[0].Body)))
		require.Equal(t, 1, in.Len())
		assert.Equal(t, tc.want, in.Messages()[0].(*moveMsg).Op)
	}
}

func TestEndpointLocalDisconnect(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	h.ep.Disconnect(id, ReasonRequested)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonRequested, changes[0].Reason)
	assert.True(t, conn.closed)

	frames := drainFrames(t, codec, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, ClassDisconnect, frames[0].Class)
	assert.Equal(t, ReasonRequested, DisconnectReason(frames[0].Body[0]))
}

func TestEndpointAcceptRateLimit(t *testing.T) {
	h := newHarness(t)
	h.cfg.AcceptRate = 0.001
	h.cfg.AcceptBurst = 1
	ep, err := NewEndpoint(h.cfg, h.key, h.listener)
	require.NoError(t, err)

	first := &fakeConn{}
	second := &fakeConn{}
	h.listener.stage(first)
	h.listener.stage(second)

	ep.Sync(h.now)

	assert.False(t, first.closed, "first connection fits the burst")
	assert.True(t, second.closed, "second connection is shed")
}

func TestEndpointSlabExhaustionShedsConnections(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < h.cfg.MaxChannels; i++ {
		h.connect(uint64(i + 1))
	}

	extra := &fakeConn{}
	h.listener.stage(extra)
	h.ep.Sync(h.now)
	assert.True(t, extra.closed)
	assert.Empty(t, h.ep.Changes())
}

func TestEndpointCloseDisconnectsEverything(t *testing.T) {
	h := newHarness(t)
	connA, _, _ := h.connect(1)
	connB, _, _ := h.connect(2)

	require.NoError(t, h.ep.Close())

	assert.True(t, connA.closed)
	assert.True(t, connB.closed)
	assert.True(t, h.listener.closed)

	changes := h.ep.Changes()
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, ChangeDisconnected, c.Kind)
		assert.Equal(t, ReasonRequested, c.Reason)
	}
}

// countingSink accumulates counter samples by group_name so tests can
// assert on traffic accounting.
type countingSink struct {
	counters map[string]float64
}

func (s *countingSink) IncrCounter(group, name string, v metrics.Value, _ metrics.Dimension) {
	s.counters[group+"_"+name] += float64(v)
}

func (s *countingSink) UpdateGauge(string, string, metrics.Value, metrics.Dimension) {}

func TestEndpointReportsTrafficCounters(t *testing.T) {
	sink := &countingSink{counters: map[string]float64{}}
	metrics.SetSink(sink)
	defer metrics.SetSink(&countingSink{counters: map[string]float64{}})

	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	frame, err := codec.EncodePayload(&moveMsg{Op: 1})
	require.NoError(t, err)
	conn.in.Write(frame)
	h.advance(10 * time.Millisecond)
	h.ep.Sync(h.now)

	batch := NewPayloadBatch(newMoveMsg)
	require.NoError(t, h.ep.Pull(id, batch))

	out := NewPayloadBatch(nil)
	out.Add(&moveMsg{Op: 2})
	require.NoError(t, h.ep.Push(id, out))

	// Token frame plus payload frame in, payload frame out.
	assert.GreaterOrEqual(t, sink.counters["net_frames_in_total"], 2.0)
	assert.GreaterOrEqual(t, sink.counters["net_frames_out_total"], 1.0)
	assert.GreaterOrEqual(t, sink.counters["net_bytes_in_total"], float64(2*HeaderSize))
	assert.GreaterOrEqual(t, sink.counters["net_bytes_out_total"], float64(HeaderSize))
}

// The full life of a connection: handshake, ordered payload exchange, and
// teardown observed through the change queue.
func TestEndpointConnectionLifecycle(t *testing.T) {
	h := newHarness(t)
	conn, codec, id := h.connect(4242)

	for i := 0; i < 3; i++ {
		frame, err := codec.EncodePayload(&moveMsg{Op: uint32(100 + i)})
		require.NoError(t, err)
		conn.in.Write(frame)
	}
	h.advance(10 * time.Millisecond)
	h.ep.Sync(h.now)

	batch := NewPayloadBatch(newMoveMsg)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.ep.Pull(id, batch))
	}
	require.Equal(t, 3, batch.Len())
	for i, want := range []uint32{100, 101, 102} {
		assert.Equal(t, want, batch.Messages()[i].(*moveMsg).Op)
	}
	assert.ErrorIs(t, h.ep.Pull(id, batch), ErrWait)

	conn.readErr = io.EOF
	h.advance(10 * time.Millisecond)
	h.ep.Sync(h.now)

	changes := h.ep.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeDisconnected, changes[0].Kind)
	assert.Equal(t, ReasonIoFailure, changes[0].Reason)
	assert.ErrorIs(t, h.ep.Pull(id, batch), ErrUnknownChannel)
}
