package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/models"
	memModels "github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// Program es el código de usuario simulado. Se invoca en cada tick con el
// proceso en RUNNING y devuelve true si el proceso dejó la CPU (durmió o terminó).
type Program func(t *ProcTable, p *models.Proc) bool

// SimSwitcher ejecuta procesos simulados. Cada tick del reloj se contabiliza con
// Tick y cuando se agota el timeslice el proceso cede la CPU.
type SimSwitcher struct {
	Table        *ProcTable
	TickInterval time.Duration
	Program      Program
}

func (s *SimSwitcher) Switch(ctx context.Context, cpu int, p *models.Proc) {
	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Table.Yield(p)
			return
		case <-ticker.C:
		}

		expired := s.Table.Tick(p)

		// Un proceso marcado termina al volver a ejecutar.
		if s.Table.IsKilled(p) {
			if err := s.Table.Exit(p); err != nil {
				slog.Error(fmt.Sprintf("## (%d) No pudo finalizar: %v", p.PID, err))
				s.Table.Yield(p)
			}
			return
		}

		if s.Program != nil && s.Program(s.Table, p) {
			return
		}
		if expired {
			s.Table.Yield(p)
			return
		}
	}
}

// WorkloadProgram es la carga de trabajo de demostración. El proceso init
// recoge hijos; el resto crece una página cada growEvery ticks, escribe su PID
// en ella y termina después de lifetime ticks.
func WorkloadProgram(tickUnit uint64, growEvery uint64, lifetime uint64) Program {
	return func(t *ProcTable, p *models.Proc) bool {
		if p.PID == 1 {
			pid, err := t.Wait(p)
			switch {
			case err == nil:
				slog.Info(fmt.Sprintf("## (%d) Recogió al proceso %d", p.PID, pid))
				return false
			case errors.Is(err, models.ErrWouldBlock):
				return true
			default:
				return false
			}
		}

		ticks := p.Runtime / tickUnit
		if ticks >= lifetime {
			if err := t.Exit(p); err != nil {
				slog.Error(fmt.Sprintf("## (%d) No pudo finalizar: %v", p.PID, err))
				return false
			}
			return true
		}

		if growEvery > 0 && ticks%growEvery == 0 {
			va := p.Size
			if err := t.Grow(p, memModels.PageSize); err != nil {
				if memModels.IsFatal(err) {
					panic(err)
				}
				return false
			}
			stamp := []byte(fmt.Sprintf("pid=%d tick=%d", p.PID, ticks))
			if err := t.mem.CopyOut(p.PageTable, va, stamp); err != nil && memModels.IsFatal(err) {
				panic(err)
			}
		}
		return false
	}
}
