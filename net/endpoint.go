package net

import (
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/lcx/nexus/buffer"
	"github.com/lcx/nexus/crypto"
	"github.com/lcx/nexus/log"
	"github.com/lcx/nexus/metrics"
)

// ErrUnknownChannel is returned when an operation names a channel that is
// not currently connected.
var ErrUnknownChannel = errors.New("net: unknown channel")

// ChangeKind distinguishes connection change events.
type ChangeKind uint8

const (
	// ChangeConnected is emitted exactly once, when a channel completes
	// its token handshake.
	ChangeConnected ChangeKind = iota
	// ChangeDisconnected is emitted exactly once per torn-down channel,
	// whatever the cause, including channels that never completed their
	// handshake.
	ChangeDisconnected
)

// ConnectionChange is the only failure and lifecycle surface the game layer
// sees. A channel torn down before authenticating reports a Disconnected
// event with a zero ClientID and no preceding Connected event.
type ConnectionChange struct {
	Channel  ChannelID
	ClientID uint64
	Kind     ChangeKind
	Reason   DisconnectReason
}

// Replicator is the game layer's outbound seam: for each connected client
// it records the messages that should ship this tick into the supplied
// batch. The batch is shared across clients within the call and reset
// before every Record.
type Replicator interface {
	Record(clientID uint64, batch *PayloadBatch)
}

// Endpoint multiplexes every client connection of one server process. All
// methods must be called from a single goroutine, normally the tick loop:
// Sync once per tick, then Changes, then Pull per client, then Replicate.
// Nothing here blocks; the endpoint does as much work as the sockets allow
// and returns.
type Endpoint struct {
	cfg      *EndpointCfg
	key      *crypto.Key
	listener Listener
	pool     *buffer.Pool

	slots       []*channel
	free        []ChannelID
	handshaking map[ChannelID]struct{}
	live        map[ChannelID]struct{}

	changes   []ConnectionChange
	limiter   *rate.Limiter
	now       time.Time
	lastSweep time.Time

	ids      []ChannelID // iteration scratch, sets may shrink mid-sweep
	repBatch *PayloadBatch
}

// NewEndpoint builds an endpoint over an already-listening socket. The key
// is the process session key shared with the authenticator.
func NewEndpoint(cfg *EndpointCfg, key *crypto.Key, ln Listener) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Endpoint{
		cfg:         cfg,
		key:         key,
		listener:    ln,
		pool:        buffer.NewPool(cfg.ChunkSize),
		slots:       make([]*channel, cfg.MaxChannels),
		free:        make([]ChannelID, 0, cfg.MaxChannels),
		handshaking: make(map[ChannelID]struct{}),
		live:        make(map[ChannelID]struct{}),
		limiter:     rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst),
	}
	for i := cfg.MaxChannels - 1; i >= 0; i-- {
		e.free = append(e.free, ChannelID(i))
	}
	return e, nil
}

// Addr returns the listener's bound address.
func (e *Endpoint) Addr() string {
	return e.listener.Addr()
}

// Sync runs one tick of transport work: admit pending connections, pump
// every socket's ingress and egress, and on its cadence sweep timeouts and
// keepalives. now is the tick timestamp all deadlines are measured against.
func (e *Endpoint) Sync(now time.Time) {
	e.now = now
	e.accept(now)

	for _, id := range e.snapshot(e.handshaking) {
		e.pumpHandshake(id, now)
	}
	for _, id := range e.snapshot(e.live) {
		ch := e.slots[id]
		if ch == nil {
			continue
		}
		if err := ch.ingress(now); err != nil {
			if fe, ok := IsFatal(err); ok {
				e.teardown(id, fe)
			}
		}
	}
	for _, id := range e.snapshot(e.live) {
		e.flush(id)
	}

	if now.Sub(e.lastSweep) >= e.cfg.HousekeepingInterval {
		e.sweep(now)
		e.lastSweep = now
	}
}

// Pull drains control frames and hands the next payload frame's messages to
// batch. ErrWait means no payload arrived this tick. Any fatal stream error
// tears the channel down, queues its change event and is returned.
func (e *Endpoint) Pull(id ChannelID, batch *PayloadBatch) error {
	ch := e.connected(id)
	if ch == nil {
		return ErrUnknownChannel
	}
	for {
		f, err := ch.receive()
		if err == ErrWait {
			return ErrWait
		}
		if err != nil {
			fe, _ := IsFatal(err)
			e.teardown(id, fe)
			return err
		}
		switch f.Class {
		case ClassPayload:
			if err := batch.decode(NewReader(f.Body)); err != nil {
				fe := fatalf(KindCorruption, "truncated payload frame")
				e.teardown(id, fe)
				return fe
			}
			return nil
		case ClassKeepalive:
			continue
		case ClassDisconnect:
			if len(f.Body) != 1 {
				fe := fatalf(KindCorruption, "disconnect body is %d bytes", len(f.Body))
				e.teardown(id, fe)
				return fe
			}
			reason := DisconnectReason(f.Body[0])
			e.remove(id, reason, false)
			return fatalf(KindRequested, "peer disconnected: %s", reason)
		default:
			fe := fatalf(KindCorruption, "unexpected %s frame on connected channel", f.Class)
			e.teardown(id, fe)
			return fe
		}
	}
}

// Push enqueues and flushes batch's messages for one client, as many frames
// as fit in the write buffer. Messages that did not fit remain in the batch;
// ErrWait tells the caller to retry them next tick.
func (e *Endpoint) Push(id ChannelID, batch *PayloadBatch) error {
	ch := e.connected(id)
	if ch == nil {
		return ErrUnknownChannel
	}
	for batch.Len() > 0 {
		if err := ch.writePayload(batch, e.now); err != nil {
			if err == ErrWait {
				break
			}
			return err
		}
	}
	if err := ch.flush(); err != nil {
		if fe, ok := IsFatal(err); ok {
			e.teardown(id, fe)
		}
		return err
	}
	if batch.Len() > 0 {
		return ErrWait
	}
	return nil
}

// Replicate runs the per-tick outbound cycle: one shared batch, reset
// before each client so no message can leak between clients, filled by the
// game layer and pushed.
func (e *Endpoint) Replicate(r Replicator) {
	if e.repBatch == nil {
		e.repBatch = NewPayloadBatch(nil)
	}
	for _, id := range e.snapshot(e.live) {
		ch := e.connected(id)
		if ch == nil {
			continue
		}
		e.repBatch.Reset()
		r.Record(ch.clientID, e.repBatch)
		if e.repBatch.Len() == 0 {
			continue
		}
		e.Push(id, e.repBatch)
	}
	e.repBatch.Reset()
}

// Disconnect tears a channel down deliberately, telling the peer why.
func (e *Endpoint) Disconnect(id ChannelID, reason DisconnectReason) {
	if int(id) >= len(e.slots) || e.slots[id] == nil {
		return
	}
	e.remove(id, reason, true)
}

// Changes returns and clears the queued connection change events, in the
// order they occurred. Each connect and each disconnect appears exactly
// once.
func (e *Endpoint) Changes() []ConnectionChange {
	out := e.changes
	e.changes = nil
	return out
}

// Close disconnects every channel and releases the listener.
func (e *Endpoint) Close() error {
	for id, ch := range e.slots {
		if ch != nil {
			e.remove(ChannelID(id), ReasonRequested, true)
		}
	}
	return e.listener.Close()
}

func (e *Endpoint) accept(now time.Time) {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			if !buffer.IsWouldBlock(err) {
				log.Error().Err(err).Msg("accept failed")
			}
			return
		}
		if !e.limiter.AllowN(now, 1) {
			conn.Close()
			metrics.IncrCounterWithGroup("net", "accept_ratelimited_total", 1)
			continue
		}
		if len(e.free) == 0 {
			conn.Close()
			metrics.IncrCounterWithGroup("net", "accept_full_total", 1)
			log.Warn().Int("maxChannels", e.cfg.MaxChannels).Msg("channel slab exhausted")
			continue
		}
		id := e.free[len(e.free)-1]
		e.free = e.free[:len(e.free)-1]
		e.slots[id] = newChannel(conn, e.key, e.cfg, e.pool, now)
		e.handshaking[id] = struct{}{}
		metrics.IncrCounterWithGroup("net", "accept_total", 1)
		log.Debug().Uint32("channel", uint32(id)).Str("remote", conn.RemoteAddr()).Msg("connection accepted")
	}
}

func (e *Endpoint) pumpHandshake(id ChannelID, now time.Time) {
	ch := e.slots[id]
	if ch == nil {
		return
	}
	if err := ch.ingress(now); err != nil {
		fe, _ := IsFatal(err)
		e.teardown(id, fe)
		return
	}
	f, err := ch.receive()
	if err == ErrWait {
		return
	}
	if err != nil {
		fe, _ := IsFatal(err)
		e.teardown(id, fe)
		return
	}
	if err := ch.handshake(f, now); err != nil {
		fe, _ := IsFatal(err)
		e.teardown(id, fe)
		return
	}
	delete(e.handshaking, id)
	e.live[id] = struct{}{}
	e.changes = append(e.changes, ConnectionChange{
		Channel:  id,
		ClientID: ch.clientID,
		Kind:     ChangeConnected,
	})
	metrics.IncrCounterWithGroup("net", "handshake_success_total", 1)
	metrics.UpdateGaugeWithGroup("net", "current_connections", metrics.Value(len(e.live)))
	log.Info().Uint32("channel", uint32(id)).Uint64("client", ch.clientID).
		Str("remote", ch.conn.RemoteAddr()).Msg("client connected")
}

func (e *Endpoint) flush(id ChannelID) {
	ch := e.slots[id]
	if ch == nil {
		return
	}
	if err := ch.flush(); err != nil {
		if fe, ok := IsFatal(err); ok {
			e.teardown(id, fe)
		}
	}
}

// sweep applies the time-based policies: handshake deadline, idle deadline
// and keepalive emission.
func (e *Endpoint) sweep(now time.Time) {
	for _, id := range e.snapshot(e.handshaking) {
		ch := e.slots[id]
		if ch != nil && now.Sub(ch.openedAt) >= e.cfg.HandshakeTimeout {
			e.teardown(id, fatalf(KindHandshakeTimeout, "no token within %v", e.cfg.HandshakeTimeout))
		}
	}
	for _, id := range e.snapshot(e.live) {
		ch := e.slots[id]
		if ch == nil {
			continue
		}
		if now.Sub(ch.lastIngress) >= e.cfg.IdleTimeout {
			e.teardown(id, fatalf(KindIdleTimeout, "silent for %v", e.cfg.IdleTimeout))
			continue
		}
		if ch.writeBuf.Len() == 0 && now.Sub(ch.lastEgress) >= e.cfg.KeepaliveInterval {
			if err := ch.writeKeepalive(now); err == nil {
				e.flush(id)
			}
		}
	}
	metrics.UpdateGaugeWithGroup("net", "current_connections", metrics.Value(len(e.live)))
	metrics.UpdateGaugeWithGroup("net", "pool_chunks_allocated", metrics.Value(e.pool.Allocated()))
	metrics.UpdateGaugeWithGroup("net", "pool_chunks_idle", metrics.Value(e.pool.Idle()))
}

// teardown handles fatal stream failures: notify the peer when the socket
// might still carry bytes, then release the slot.
func (e *Endpoint) teardown(id ChannelID, fe *FatalError) {
	reason := ReasonRequested
	if fe != nil {
		reason = reasonFor(fe.Kind)
		log.Warn().Uint32("channel", uint32(id)).Str("kind", fe.Kind.String()).
			Err(fe.Err).Msg("channel failed")
	}
	notify := fe == nil || fe.Kind != KindIoFailure
	e.remove(id, reason, notify)
}

// remove is the single place a channel leaves the endpoint. Every teardown
// emits exactly one Disconnected change; a channel torn down before
// authenticating carries a zero client ID.
func (e *Endpoint) remove(id ChannelID, reason DisconnectReason, notifyPeer bool) {
	ch := e.slots[id]
	if ch == nil {
		return
	}
	if notifyPeer {
		if err := ch.writeDisconnect(reason, e.now); err == nil {
			ch.flush()
		}
	}
	ch.close()
	e.slots[id] = nil
	delete(e.handshaking, id)
	delete(e.live, id)
	e.free = append(e.free, id)
	e.changes = append(e.changes, ConnectionChange{
		Channel:  id,
		ClientID: ch.clientID,
		Kind:     ChangeDisconnected,
		Reason:   reason,
	})
	metrics.IncrCounterWithDimGroup("net", "connection_close_total", 1,
		metrics.Dimension{"reason": reason.String()})
	log.Info().Uint32("channel", uint32(id)).Uint64("client", ch.clientID).
		Str("reason", reason.String()).Msg("connection closed")
}

func (e *Endpoint) connected(id ChannelID) *channel {
	if _, ok := e.live[id]; !ok {
		return nil
	}
	return e.slots[id]
}

// snapshot copies a set's members so teardown can mutate the set while the
// caller iterates.
func (e *Endpoint) snapshot(set map[ChannelID]struct{}) []ChannelID {
	e.ids = e.ids[:0]
	for id := range set {
		e.ids = append(e.ids, id)
	}
	return e.ids
}
