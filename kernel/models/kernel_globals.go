package models

import (
	"github.com/cockroachdb/errors"
	memModels "github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

type SchedulerConfig struct {
	CPUs           int    `json:"cpus"`
	BaseQuantum    uint64 `json:"base_quantum"`
	TickUnit       uint64 `json:"tick_unit"`
	TickIntervalMs int    `json:"tick_interval_ms"`
	IdleIntervalMs int    `json:"idle_interval_ms"`
	Workload       int    `json:"workload"`
	Lifetime       int    `json:"lifetime_ticks"`
}

type Config struct {
	PortKernel int              `json:"port_kernel"`
	LogLevel   string           `json:"log_level"`
	LogPath    string           `json:"log_path"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Memory     memModels.Config `json:"memory"`
}

var KernelConfig *Config

// DefaultSchedulerConfig devuelve los valores con los que se calcula el
// timeslice y el avance del tiempo virtual.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		CPUs:           1,
		BaseQuantum:    10000,
		TickUnit:       1000,
		TickIntervalMs: 10,
		IdleIntervalMs: 10,
	}
}

func (c *SchedulerConfig) Validate() error {
	if c.CPUs <= 0 {
		return errors.Newf("cpus debe ser positivo, se recibió %d", c.CPUs)
	}
	if c.BaseQuantum == 0 || c.TickUnit == 0 {
		return errors.New("base_quantum y tick_unit deben ser positivos")
	}
	if c.TickIntervalMs <= 0 || c.IdleIntervalMs <= 0 {
		return errors.New("tick_interval_ms e idle_interval_ms deben ser positivos")
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return errors.Wrap(err, "scheduler")
	}
	if err := c.Memory.Validate(); err != nil {
		return errors.Wrap(err, "memory")
	}
	return nil
}
