package net

import (
	"fmt"
	"math"
	"time"

	"github.com/lcx/nexus/crypto"
)

// EndpointCfg carries every transport tunable. It is loaded through the
// config manager under the name "endpoint" and validated before use; the
// endpoint itself contains no hidden defaults.
type EndpointCfg struct {
	// Addr is the host:port the endpoint listens on.
	Addr string `mapstructure:"addr"`

	// ChunkSize is the capacity of one pooled buffer chunk.
	ChunkSize int `mapstructure:"chunkSize"`

	// MaxFrameSize caps the encrypted body (ciphertext plus tag) of a
	// single frame. The wire field is u16, so 65535 is the hard ceiling.
	MaxFrameSize int `mapstructure:"maxFrameSize"`

	// ReadBufferLimit and WriteBufferLimit bound per-connection buffering.
	// A peer that outruns the write limit is disconnected rather than
	// allowed to grow the heap.
	ReadBufferLimit  int `mapstructure:"readBufferLimit"`
	WriteBufferLimit int `mapstructure:"writeBufferLimit"`

	// MaxChannels caps concurrent connections; the slab is sized once.
	MaxChannels int `mapstructure:"maxChannels"`

	// HandshakeTimeout bounds how long a fresh connection may sit without
	// presenting its token.
	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`

	// IdleTimeout disconnects a peer silent for this long. Keepalives
	// count as traffic, so a healthy peer never trips it.
	IdleTimeout time.Duration `mapstructure:"idleTimeout"`

	// KeepaliveInterval is the maximum outbound silence before the
	// endpoint emits a keepalive frame.
	KeepaliveInterval time.Duration `mapstructure:"keepaliveInterval"`

	// HousekeepingInterval is the cadence of timeout/keepalive sweeps
	// inside Sync.
	HousekeepingInterval time.Duration `mapstructure:"housekeepingInterval"`

	// AcceptRate and AcceptBurst shape the token bucket limiting how many
	// new connections are admitted per second.
	AcceptRate  float64 `mapstructure:"acceptRate"`
	AcceptBurst int     `mapstructure:"acceptBurst"`

	// Protocol and Version are the values a token must match.
	Protocol uint16 `mapstructure:"protocol"`
	Version  uint16 `mapstructure:"version"`
}

// DefaultEndpointCfg returns the production defaults.
func DefaultEndpointCfg() *EndpointCfg {
	return &EndpointCfg{
		Addr:                 "0.0.0.0:9350",
		ChunkSize:            8192,
		MaxFrameSize:         16384,
		ReadBufferLimit:      64 * 1024,
		WriteBufferLimit:     256 * 1024,
		MaxChannels:          4096,
		HandshakeTimeout:     5 * time.Second,
		IdleTimeout:          30 * time.Second,
		KeepaliveInterval:    3 * time.Second,
		HousekeepingInterval: 3 * time.Second,
		AcceptRate:           512,
		AcceptBurst:          128,
		Protocol:             0x0a55,
		Version:              0x0001,
	}
}

// GetName implements config.Config.
func (c *EndpointCfg) GetName() string {
	return "endpoint"
}

// Validate rejects configs the endpoint cannot run with.
func (c *EndpointCfg) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("endpoint: addr is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("endpoint: chunkSize must be positive, got %d", c.ChunkSize)
	}
	if c.MaxFrameSize <= crypto.TagSize || c.MaxFrameSize > math.MaxUint16 {
		return fmt.Errorf("endpoint: maxFrameSize must be in (%d, %d], got %d",
			crypto.TagSize, math.MaxUint16, c.MaxFrameSize)
	}
	if c.ReadBufferLimit < HeaderSize+c.MaxFrameSize {
		return fmt.Errorf("endpoint: readBufferLimit %d cannot hold one max frame (%d)",
			c.ReadBufferLimit, HeaderSize+c.MaxFrameSize)
	}
	if c.WriteBufferLimit < HeaderSize+c.MaxFrameSize {
		return fmt.Errorf("endpoint: writeBufferLimit %d cannot hold one max frame (%d)",
			c.WriteBufferLimit, HeaderSize+c.MaxFrameSize)
	}
	if c.MaxChannels <= 0 {
		return fmt.Errorf("endpoint: maxChannels must be positive, got %d", c.MaxChannels)
	}
	if c.HandshakeTimeout <= 0 || c.IdleTimeout <= 0 ||
		c.KeepaliveInterval <= 0 || c.HousekeepingInterval <= 0 {
		return fmt.Errorf("endpoint: all timeouts and intervals must be positive")
	}
	if c.KeepaliveInterval >= c.IdleTimeout {
		return fmt.Errorf("endpoint: keepaliveInterval %v must be below idleTimeout %v",
			c.KeepaliveInterval, c.IdleTimeout)
	}
	if c.AcceptRate <= 0 || c.AcceptBurst <= 0 {
		return fmt.Errorf("endpoint: acceptRate and acceptBurst must be positive")
	}
	return nil
}
