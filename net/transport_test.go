package net

import (
	"bytes"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lcx/nexus/crypto"
)

// fakeConn is an in-memory Conn with non-blocking semantics: reads drain a
// staged inbound buffer and report EAGAIN when it is empty, writes collect
// into an outbound buffer the test inspects.
type fakeConn struct {
	in      bytes.Buffer
	out     bytes.Buffer
	readErr error
	closed  bool
}

func (c *fakeConn) Read(p []byte) (int, error) {
	if c.readErr != nil {
		return 0, c.readErr
	}
	if c.in.Len() == 0 {
		return 0, syscall.EAGAIN
	}
	return c.in.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.closed {
		return 0, syscall.EPIPE
	}
	return c.out.Write(p)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) RemoteAddr() string {
	return "fake:0"
}

// fakeListener hands out staged connections and reports EAGAIN once they
// are exhausted.
type fakeListener struct {
	pending []*fakeConn
	closed  bool
}

func (l *fakeListener) Accept() (Conn, error) {
	if len(l.pending) == 0 {
		return nil, syscall.EAGAIN
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	return c, nil
}

func (l *fakeListener) Addr() string {
	return "fake:9350"
}

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}

func (l *fakeListener) stage(c *fakeConn) {
	l.pending = append(l.pending, c)
}

// testCfg keeps frames small enough to exercise chunk straddling and makes
// every Sync run a housekeeping sweep.
func testCfg() *EndpointCfg {
	cfg := DefaultEndpointCfg()
	cfg.ChunkSize = 64
	cfg.MaxFrameSize = 512
	cfg.ReadBufferLimit = 4096
	cfg.WriteBufferLimit = 4096
	cfg.MaxChannels = 8
	cfg.HousekeepingInterval = time.Nanosecond
	return cfg
}

// testHarness wires an endpoint to fakes and tracks the test clock.
type testHarness struct {
	t        *testing.T
	cfg      *EndpointCfg
	key      *crypto.Key
	listener *fakeListener
	ep       *Endpoint
	now      time.Time
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	key, err := crypto.NewKey()
	require.NoError(t, err)
	cfg := testCfg()
	ln := &fakeListener{}
	ep, err := NewEndpoint(cfg, key, ln)
	require.NoError(t, err)
	return &testHarness{
		t:        t,
		cfg:      cfg,
		key:      key,
		listener: ln,
		ep:       ep,
		now:      time.Unix(1_700_000_000, 0),
	}
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHarness) tokenBody(clientID uint64) []byte {
	return SealToken(h.key, h.cfg.Protocol, h.cfg.Version,
		uint64(h.now.Add(time.Minute).Unix()), 7, PrivateData{ClientID: clientID})
}

// connect stages a connection, performs the token handshake and asserts the
// Connected change was emitted.
func (h *testHarness) connect(clientID uint64) (*fakeConn, *ClientCodec, ChannelID) {
	h.t.Helper()
	conn := &fakeConn{}
	codec := NewClientCodec(h.key, h.cfg.MaxFrameSize)
	conn.in.Write(codec.EncodeToken(h.tokenBody(clientID)))
	h.listener.stage(conn)

	h.ep.Sync(h.now)
	changes := h.ep.Changes()
	require.Len(h.t, changes, 1)
	require.Equal(h.t, ChangeConnected, changes[0].Kind)
	require.Equal(h.t, clientID, changes[0].ClientID)
	return conn, codec, changes[0].Channel
}

// drainFrames decodes every complete frame the endpoint wrote to conn.
func drainFrames(t *testing.T, codec *ClientCodec, conn *fakeConn) []Frame {
	t.Helper()
	var frames []Frame
	stream := conn.out.Bytes()
	consumed := 0
	for {
		f, n, err := codec.DecodeNext(stream[consumed:])
		if err == ErrWait {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
		consumed += n
	}
	conn.out.Next(consumed)
	return frames
}
