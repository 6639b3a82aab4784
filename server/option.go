package server

import (
	"fmt"
	"time"
)

// Cfg carries the tick loop tunables. Loaded under the name "server".
type Cfg struct {
	// TickRate is how many simulation ticks run per second. Every tick
	// performs one full transport cycle.
	TickRate int `mapstructure:"tickRate"`
}

// DefaultCfg returns the production defaults.
func DefaultCfg() *Cfg {
	return &Cfg{TickRate: 30}
}

// GetName implements config.Config.
func (c *Cfg) GetName() string {
	return "server"
}

// Validate implements config.Config.
func (c *Cfg) Validate() error {
	if c.TickRate < 1 || c.TickRate > 1000 {
		return fmt.Errorf("server: tickRate must be in [1, 1000], got %d", c.TickRate)
	}
	return nil
}

// interval converts the tick rate into the ticker period.
func (c *Cfg) interval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}
