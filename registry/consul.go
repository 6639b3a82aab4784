package registry

import (
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/lcx/nexus/log"
)

// catalogAgent is the slice of the consul agent API the registrar uses,
// narrowed so tests can fake it.
type catalogAgent interface {
	ServiceRegister(service *api.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
	UpdateTTL(checkID, output, status string) error
}

// ConsulRegistrar keeps one service registration alive in a consul catalog.
type ConsulRegistrar struct {
	cfg     *Cfg
	agent   catalogAgent
	checkID string
	stop    chan struct{}
	done    chan struct{}
}

// NewConsulRegistrar connects to the agent named in cfg.
func NewConsulRegistrar(cfg *Cfg) (*ConsulRegistrar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := api.NewClient(&api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("registry: connect agent: %w", err)
	}
	return newConsulRegistrar(cfg, client.Agent()), nil
}

func newConsulRegistrar(cfg *Cfg, agent catalogAgent) *ConsulRegistrar {
	return &ConsulRegistrar{
		cfg:     cfg,
		agent:   agent,
		checkID: "service:" + cfg.InstanceID,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register puts this instance into the catalog and starts the TTL
// heartbeat. The registration carries the wire protocol and version so the
// master only routes compatible clients.
func (r *ConsulRegistrar) Register() error {
	meta := map[string]string{}
	for k, v := range r.cfg.Meta {
		meta[k] = v
	}

	reg := &api.AgentServiceRegistration{
		ID:      r.cfg.InstanceID,
		Name:    r.cfg.ServiceName,
		Address: r.cfg.AdvertiseAddr,
		Port:    r.cfg.AdvertisePort,
		Meta:    meta,
		Check: &api.AgentServiceCheck{
			CheckID:                        r.checkID,
			TTL:                            r.cfg.TTL.String(),
			DeregisterCriticalServiceAfter: (3 * r.cfg.TTL).String(),
		},
	}
	if err := r.agent.ServiceRegister(reg); err != nil {
		return fmt.Errorf("registry: register %s: %w", r.cfg.InstanceID, err)
	}

	// Pass immediately so the instance is routable before the first tick
	// of the heartbeat.
	if err := r.agent.UpdateTTL(r.checkID, "registered", api.HealthPassing); err != nil {
		return fmt.Errorf("registry: initial ttl: %w", err)
	}

	go r.heartbeat()
	log.Info().Str("service", r.cfg.ServiceName).Str("instance", r.cfg.InstanceID).
		Str("addr", fmt.Sprintf("%s:%d", r.cfg.AdvertiseAddr, r.cfg.AdvertisePort)).
		Msg("registered with service catalog")
	return nil
}

func (r *ConsulRegistrar) heartbeat() {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.TTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.agent.UpdateTTL(r.checkID, "", api.HealthPassing); err != nil {
				log.Warn().Err(err).Str("instance", r.cfg.InstanceID).Msg("ttl refresh failed")
			}
		case <-r.stop:
			return
		}
	}
}

// Deregister stops the heartbeat and removes the instance from the
// catalog.
func (r *ConsulRegistrar) Deregister() error {
	close(r.stop)
	<-r.done
	if err := r.agent.ServiceDeregister(r.cfg.InstanceID); err != nil {
		return fmt.Errorf("registry: deregister %s: %w", r.cfg.InstanceID, err)
	}
	log.Info().Str("instance", r.cfg.InstanceID).Msg("deregistered from service catalog")
	return nil
}
