package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/models"
)

// DispatchOnce hace una ronda de planificación en la CPU cpu: elige, entre los
// RUNNABLE, el de menor tiempo virtual (ante empate gana el primero de la
// tabla), calcula su timeslice sobre la suma de pesos y lo ejecuta con sw.
// Devuelve false si no había nada para ejecutar.
//
// El lock se suelta mientras el proceso ejecuta: el estado RUNNING le da a esta
// CPU la exclusividad sobre el proceso.
func (t *ProcTable) DispatchOnce(ctx context.Context, cpu int, sw Switcher) bool {
	t.mu.Lock()

	var chosen *models.Proc
	var sumWeights uint64
	for i := range t.procs {
		p := &t.procs[i]
		if p.State != models.StateRunnable {
			continue
		}
		sumWeights += p.Weight
		if chosen == nil || p.VRuntime < chosen.VRuntime {
			chosen = p
		}
	}

	if chosen == nil {
		t.mu.Unlock()
		return false
	}

	chosen.Timeslice = t.cfg.BaseQuantum * chosen.Weight / sumWeights
	chosen.SliceUsed = 0
	chosen.CPU = cpu
	transitionLocked(chosen, models.StateRunning)
	t.mu.Unlock()

	sw.Switch(ctx, cpu, chosen)

	// Si se durmió y otra CPU ya lo volvió a despachar, no es de esta CPU.
	t.mu.Lock()
	if chosen.State == models.StateRunning && chosen.CPU == cpu {
		slog.Warn(fmt.Sprintf("## (%d) Volvió a la CPU %d sin ceder, pasa a RUNNABLE", chosen.PID, cpu))
		transitionLocked(chosen, models.StateRunnable)
	}
	t.mu.Unlock()
	return true
}

// Run ejecuta el ciclo de planificación de una CPU hasta que se cancele ctx.
func (t *ProcTable) Run(ctx context.Context, cpu int, sw Switcher) {
	idle := time.Duration(t.cfg.IdleIntervalMs) * time.Millisecond
	slog.Debug(fmt.Sprintf("CPU %d: planificador iniciado", cpu))

	for {
		select {
		case <-ctx.Done():
			slog.Debug(fmt.Sprintf("CPU %d: planificador detenido", cpu))
			return
		default:
		}

		if !t.DispatchOnce(ctx, cpu, sw) {
			select {
			case <-ctx.Done():
			case <-time.After(idle):
			}
		}
	}
}

// Tick contabiliza un tick de ejecución del proceso: suma tick_unit al tiempo
// real y tick_unit*1024/peso al virtual. Devuelve true si se agotó el timeslice.
func (t *ProcTable) Tick(p *models.Proc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p.Runtime += t.cfg.TickUnit
	p.VRuntime += t.cfg.TickUnit * models.BaselineWeight / p.Weight
	p.SliceUsed += t.cfg.TickUnit
	return p.SliceUsed >= p.Timeslice
}

// Yield devuelve el proceso a RUNNABLE.
func (t *ProcTable) Yield(p *models.Proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p.State == models.StateRunning {
		transitionLocked(p, models.StateRunnable)
	}
}

// Sleep deja al proceso durmiendo sobre ch. Como el cambio de estado y el
// chequeo de Wakeup usan el mismo lock, no se pierden despertares.
func (t *ProcTable) Sleep(p *models.Proc, ch any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.Chan = ch
	transitionLocked(p, models.StateSleeping)
}

// Wakeup despierta a todos los procesos que duermen sobre ch.
func (t *ProcTable) Wakeup(ch any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wakeupLocked(ch)
}

func (t *ProcTable) wakeupLocked(ch any) {
	for i := range t.procs {
		p := &t.procs[i]
		if p.State != models.StateSleeping || p.Chan != ch {
			continue
		}
		p.VRuntime = t.wakeVRuntimeLocked(p)
		p.Chan = nil
		transitionLocked(p, models.StateRunnable)
	}
}

// wakeVRuntimeLocked calcula el tiempo virtual de un proceso que se despierta:
// el mínimo entre los RUNNABLE menos el equivalente a un tick con su peso. Si no
// hay RUNNABLE o la resta no alcanza, queda en cero.
func (t *ProcTable) wakeVRuntimeLocked(p *models.Proc) uint64 {
	var minVRuntime uint64
	found := false
	for i := range t.procs {
		q := &t.procs[i]
		if q.State != models.StateRunnable {
			continue
		}
		if !found || q.VRuntime < minVRuntime {
			minVRuntime = q.VRuntime
			found = true
		}
	}

	tick := t.cfg.TickUnit * models.BaselineWeight / p.Weight
	if !found || minVRuntime < tick {
		return 0
	}
	return minVRuntime - tick
}

// SetPriority cambia la prioridad (y con ella el peso) de un proceso.
func (t *ProcTable) SetPriority(pid int, priority int) error {
	if !models.ValidPriority(priority) {
		return errors.Wrapf(models.ErrInvalidPriority, "%d fuera de [%d, %d]", priority, models.MinPriority, models.MaxPriority)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.lookupLocked(pid)
	if p == nil {
		return errors.Wrapf(models.ErrNoProcess, "pid %d", pid)
	}
	p.Priority = priority
	p.Weight = models.Weights[priority]
	slog.Info(fmt.Sprintf("## (%d) Prioridad actualizada a %d - Peso: %d", pid, priority, p.Weight))
	return nil
}

func (t *ProcTable) GetPriority(pid int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.lookupLocked(pid)
	if p == nil {
		return 0, errors.Wrapf(models.ErrNoProcess, "pid %d", pid)
	}
	return p.Priority, nil
}
