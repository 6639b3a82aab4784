// Package server is the process skeleton around one endpoint: a fixed-rate
// tick loop that pumps the transport, forwards lifecycle events and inbound
// payloads to the game layer, and drives the outbound replication cycle.
// The game layer never touches sockets, frames or crypto; it sees clients
// connect, disconnect, and exchange payload batches.
package server

import (
	"sync"
	"time"

	"github.com/lcx/nexus/log"
	"github.com/lcx/nexus/metrics"
	"github.com/lcx/nexus/net"
	"github.com/lcx/nexus/registry"
)

// Game is everything the tick loop asks of the simulation. All calls happen
// on the tick goroutine, in order: connects and disconnects first, then one
// OnPayload per inbound payload frame, then Record per connected client.
//
// The batch passed to OnPayload and Record is shared across clients within
// a tick and reset between calls; implementations must consume or copy what
// they need before returning.
//
// Every teardown reaches OnDisconnect, including connections that never
// authenticated; those carry a zero clientID and no preceding OnConnect.
type Game interface {
	net.Replicator

	OnConnect(ch net.ChannelID, clientID uint64)
	OnDisconnect(ch net.ChannelID, clientID uint64, reason net.DisconnectReason)
	OnPayload(clientID uint64, batch *net.PayloadBatch)
}

// Server owns the endpoint and runs the tick loop. Tick is exported so a
// host that already has a frame loop (or a test) can drive it directly;
// Run/Stop wrap it in a time.Ticker.
type Server struct {
	cfg       *Cfg
	ep        *net.Endpoint
	game      Game
	registrar registry.Registrar

	in      *net.PayloadBatch
	clients map[net.ChannelID]uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New builds a server over an endpoint. factory produces the message type
// inbound payload frames decode into.
func New(cfg *Cfg, ep *net.Endpoint, game Game, factory func() net.Message) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		ep:      ep,
		game:    game,
		in:      net.NewPayloadBatch(factory),
		clients: make(map[net.ChannelID]uint64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// SetRegistrar attaches the catalog registration driven by Run: register
// before the first tick, deregister on Stop. Must be called before Run.
func (s *Server) SetRegistrar(r registry.Registrar) {
	s.registrar = r
}

// Tick runs one complete server cycle at the given timestamp: transport
// sync, lifecycle events, inbound payloads, outbound replication.
func (s *Server) Tick(now time.Time) {
	s.ep.Sync(now)

	for _, c := range s.ep.Changes() {
		switch c.Kind {
		case net.ChangeConnected:
			s.clients[c.Channel] = c.ClientID
			s.game.OnConnect(c.Channel, c.ClientID)
		case net.ChangeDisconnected:
			delete(s.clients, c.Channel)
			s.game.OnDisconnect(c.Channel, c.ClientID, c.Reason)
		}
	}

	for id, clientID := range s.clients {
		s.pull(id, clientID)
	}

	s.ep.Replicate(s.game)
	metrics.IncrCounterWithGroup("server", "tick_total", 1)
}

// pull drains every payload frame one channel delivered this tick. A fatal
// error has already torn the channel down inside the endpoint; the
// Disconnected event reaches the game layer on the next tick.
func (s *Server) pull(id net.ChannelID, clientID uint64) {
	for {
		s.in.Reset()
		if err := s.ep.Pull(id, s.in); err != nil {
			return
		}
		if s.in.Len() > 0 {
			s.game.OnPayload(clientID, s.in)
		}
	}
}

// Run registers with the catalog (if a registrar is attached) and ticks
// until Stop is called, then deregisters and closes the endpoint. It blocks
// for the server's lifetime.
func (s *Server) Run() error {
	if s.registrar != nil {
		if err := s.registrar.Register(); err != nil {
			return err
		}
	}
	log.Info().Str("addr", s.ep.Addr()).Int("tickRate", s.cfg.TickRate).Msg("server running")

	ticker := time.NewTicker(s.cfg.interval())
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.Tick(now)
		case <-s.stop:
			if s.registrar != nil {
				if err := s.registrar.Deregister(); err != nil {
					log.Warn().Err(err).Msg("deregister failed")
				}
			}
			err := s.ep.Close()
			for _, c := range s.ep.Changes() {
				if c.Kind == net.ChangeDisconnected {
					s.game.OnDisconnect(c.Channel, c.ClientID, c.Reason)
				}
			}
			log.Info().Msg("server stopped")
			close(s.done)
			return err
		}
	}
}

// Stop shuts the running server down and waits for Run to return. Safe to
// call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}
