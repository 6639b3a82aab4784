// Package registry announces this dedicated server instance to the service
// catalog the master servers read, so matchmaking can route clients here.
// Registration carries the transport's protocol and version as metadata and
// stays alive through a TTL heartbeat; everything else about the master is
// out of scope.
package registry

import (
	"fmt"
	"time"
)

// Registrar is the lifecycle boundary the server process drives: Register
// once after the endpoint is listening, Deregister on shutdown.
type Registrar interface {
	Register() error
	Deregister() error
}

// Cfg configures the catalog registration. Loaded under the name
// "registry".
type Cfg struct {
	// Address is the catalog agent address (host:port).
	Address string `mapstructure:"address"`

	// ServiceName groups all dedicated server instances.
	ServiceName string `mapstructure:"serviceName"`

	// InstanceID uniquely identifies this process in the catalog.
	InstanceID string `mapstructure:"instanceID"`

	// AdvertiseAddr and AdvertisePort are what clients are routed to,
	// which may differ from the bind address behind NAT.
	AdvertiseAddr string `mapstructure:"advertiseAddr"`
	AdvertisePort int    `mapstructure:"advertisePort"`

	// TTL is the health check window; the registrar refreshes at half
	// this interval.
	TTL time.Duration `mapstructure:"ttl"`

	// Meta is attached to the registration verbatim, alongside the
	// transport protocol and version.
	Meta map[string]string `mapstructure:"meta"`
}

// DefaultCfg returns the production defaults; InstanceID and the advertise
// address must still be filled in.
func DefaultCfg() *Cfg {
	return &Cfg{
		Address:     "127.0.0.1:8500",
		ServiceName: "nexus-dedicated",
		TTL:         15 * time.Second,
	}
}

// GetName implements config.Config.
func (c *Cfg) GetName() string {
	return "registry"
}

// Validate implements config.Config.
func (c *Cfg) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("registry: address is required")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("registry: serviceName is required")
	}
	if c.InstanceID == "" {
		return fmt.Errorf("registry: instanceID is required")
	}
	if c.AdvertiseAddr == "" || c.AdvertisePort <= 0 {
		return fmt.Errorf("registry: advertise address and port are required")
	}
	if c.TTL < 2*time.Second {
		return fmt.Errorf("registry: ttl %v is too short to heartbeat reliably", c.TTL)
	}
	return nil
}
