package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/models"
	memModels "github.com/sisoputnfrba/tp-xv6-core/memoria/models"
	memServices "github.com/sisoputnfrba/tp-xv6-core/memoria/services"
)

// Switcher cede la CPU al proceso elegido y vuelve cuando el proceso deja de
// ejecutar, sea porque agotó su timeslice, se bloqueó o terminó.
type Switcher interface {
	Switch(ctx context.Context, cpu int, p *models.Proc)
}

// ProcTable es la tabla de procesos. Un único lock protege el estado y los
// campos de planificación de todos los procesos.
type ProcTable struct {
	mu       sync.Mutex
	procs    [models.NProc]models.Proc
	nextPID  int
	initProc *models.Proc
	mem      *memServices.Memory
	cfg      models.SchedulerConfig
}

func NewProcTable(mem *memServices.Memory, cfg models.SchedulerConfig) *ProcTable {
	return &ProcTable{mem: mem, cfg: cfg, nextPID: 1}
}

// transitionLocked cambia el estado del proceso y lo registra.
func transitionLocked(p *models.Proc, newState models.ProcState) {
	oldState := p.State
	p.State = newState
	if p.ME == nil {
		p.ME = make(map[models.ProcState]int)
	}
	p.ME[newState]++

	switch {
	case oldState == models.StateEmbryo && newState == models.StateRunnable:
		slog.Info(fmt.Sprintf("## (%d) Se crea el proceso - Estado: %s", p.PID, newState))
	case newState == models.StateRunning || oldState == models.StateRunning && newState == models.StateRunnable:
		slog.Debug(fmt.Sprintf("## (%d) Pasa del estado %s al estado %s", p.PID, oldState, newState))
	default:
		slog.Info(fmt.Sprintf("## (%d) Pasa del estado %s al estado %s", p.PID, oldState, newState))
	}
}

// allocProc reserva una entrada libre con la prioridad por defecto.
func (t *ProcTable) allocProc() (*models.Proc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.procs {
		p := &t.procs[i]
		if p.State != models.StateUnused {
			continue
		}
		*p = models.Proc{
			PID:      t.nextPID,
			State:    models.StateEmbryo,
			Priority: models.DefaultPriority,
			Weight:   models.Weights[models.DefaultPriority],
			ME:       map[models.ProcState]int{models.StateEmbryo: 1},
		}
		t.nextPID++
		return p, nil
	}
	return nil, errors.WithStack(models.ErrProcTableFull)
}

// releaseLocked devuelve la entrada a UNUSED.
func releaseLocked(p *models.Proc) {
	*p = models.Proc{State: models.StateUnused}
}

// UserInit crea el primer proceso con el código inicial mapeado en la dirección 0.
func (t *ProcTable) UserInit(code []byte) (*models.Proc, error) {
	p, err := t.allocProc()
	if err != nil {
		return nil, err
	}

	table := memModels.NewPageTable()
	if err := t.mem.LoadInitCode(table, code); err != nil {
		t.mu.Lock()
		releaseLocked(p)
		t.mu.Unlock()
		return nil, errors.Wrap(err, "no se pudo cargar el proceso init")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	p.Name = "initcode"
	p.PageTable = table
	p.Size = memModels.PageSize
	t.initProc = p
	transitionLocked(p, models.StateRunnable)
	return p, nil
}

// Fork crea un hijo con una copia del espacio de direcciones del padre. El hijo
// hereda la prioridad y el tiempo virtual; el tiempo de ejecución arranca en cero.
// La copia de memoria se hace sin el lock de la tabla porque puede desalojar páginas.
func (t *ProcTable) Fork(parent *models.Proc) (*models.Proc, error) {
	child, err := t.allocProc()
	if err != nil {
		return nil, err
	}

	table, err := t.mem.Duplicate(parent.PageTable, parent.Size)
	if err != nil {
		t.mu.Lock()
		releaseLocked(child)
		t.mu.Unlock()
		slog.Warn(fmt.Sprintf("## (%d) Fork fallido: %v", parent.PID, err))
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	child.Name = parent.Name
	child.PageTable = table
	child.Size = parent.Size
	child.Parent = parent
	child.Priority = parent.Priority
	child.Weight = parent.Weight
	child.VRuntime = parent.VRuntime
	transitionLocked(child, models.StateRunnable)
	return child, nil
}

// Grow cambia el tamaño del proceso en n bytes. Si no hay memoria el tamaño no cambia.
func (t *ProcTable) Grow(p *models.Proc, n int) error {
	t.mu.Lock()
	sz := p.Size
	table := p.PageTable
	t.mu.Unlock()

	if n < 0 && uint64(-n) > uint64(sz) {
		return errors.Newf("no se puede reducir %d bytes un proceso de %d", -n, sz)
	}
	if n > 0 && uint64(sz)+uint64(n) >= memModels.KernBase {
		err := errors.Wrapf(memModels.ErrOutOfMemory, "crecer %d bytes desde 0x%x invade el espacio del kernel", n, sz)
		slog.Warn(fmt.Sprintf("## (%d) No se pudo cambiar el tamaño en %d bytes: %v", p.PID, n, err))
		return err
	}

	var err error
	switch {
	case n > 0:
		sz, err = t.mem.Grow(table, sz, sz+uint32(n))
	case n < 0:
		sz, err = t.mem.Shrink(table, sz, sz-uint32(-n))
	}

	t.mu.Lock()
	p.Size = sz
	t.mu.Unlock()

	if err != nil {
		slog.Warn(fmt.Sprintf("## (%d) No se pudo cambiar el tamaño en %d bytes: %v", p.PID, n, err))
	}
	return err
}

// Exit deja al proceso en ZOMBIE, despierta al padre y pasa sus hijos a init.
// La memoria la libera el padre en Wait.
func (t *ProcTable) Exit(p *models.Proc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p == t.initProc {
		return errors.WithStack(models.ErrInitExiting)
	}

	if p.Parent != nil {
		t.wakeupLocked(p.Parent)
	}
	for i := range t.procs {
		c := &t.procs[i]
		if c.Parent == p {
			c.Parent = t.initProc
			if c.State == models.StateZombie {
				t.wakeupLocked(t.initProc)
			}
		}
	}

	p.Chan = nil
	transitionLocked(p, models.StateZombie)
	slog.Info(fmt.Sprintf("## (%d) - Finaliza el proceso", p.PID))
	return nil
}

// Wait recoge un hijo en ZOMBIE y devuelve su PID. Si hay hijos vivos deja al
// proceso durmiendo sobre sí mismo y devuelve ErrWouldBlock.
func (t *ProcTable) Wait(p *models.Proc) (int, error) {
	t.mu.Lock()

	haveKids := false
	for i := range t.procs {
		c := &t.procs[i]
		if c.Parent != p || c.State == models.StateUnused {
			continue
		}
		haveKids = true
		if c.State != models.StateZombie {
			continue
		}

		pid := c.PID
		table := c.PageTable
		releaseLocked(c)
		t.mu.Unlock()

		if err := t.mem.Destroy(table); err != nil {
			return pid, errors.Wrapf(err, "no se pudo liberar la memoria del proceso %d", pid)
		}
		return pid, nil
	}
	defer t.mu.Unlock()

	if !haveKids {
		return 0, errors.WithStack(models.ErrNoChildren)
	}
	if p.Killed {
		return 0, errors.WithStack(models.ErrKilled)
	}

	p.Chan = p
	transitionLocked(p, models.StateSleeping)
	return 0, errors.WithStack(models.ErrWouldBlock)
}

// Kill marca al proceso. Si estaba durmiendo pasa a RUNNABLE sin ajustar su
// tiempo virtual; la terminación ocurre cuando vuelve a ejecutar. Init no
// puede terminar, así que no se lo marca.
func (t *ProcTable) Kill(pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.lookupLocked(pid)
	if p == nil {
		return errors.Wrapf(models.ErrNoProcess, "pid %d", pid)
	}
	if p == t.initProc {
		return errors.Wrapf(models.ErrKillInit, "pid %d", pid)
	}
	p.Killed = true
	if p.State == models.StateSleeping {
		transitionLocked(p, models.StateRunnable)
	}
	return nil
}

func (t *ProcTable) IsKilled(p *models.Proc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return p.Killed
}

func (t *ProcTable) lookupLocked(pid int) *models.Proc {
	for i := range t.procs {
		p := &t.procs[i]
		if p.State != models.StateUnused && p.PID == pid {
			return p
		}
	}
	return nil
}

// Lookup devuelve el proceso con ese PID o nil.
func (t *ProcTable) Lookup(pid int) *models.Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookupLocked(pid)
}

// Procs devuelve una foto de los procesos en uso.
func (t *ProcTable) Procs() []models.ProcInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := []models.ProcInfo{}
	for i := range t.procs {
		p := &t.procs[i]
		if p.State == models.StateUnused {
			continue
		}
		infos = append(infos, models.ProcInfo{
			PID:       p.PID,
			Name:      p.Name,
			State:     p.State.String(),
			Priority:  p.Priority,
			Weight:    p.Weight,
			VRuntime:  p.VRuntime,
			Runtime:   p.Runtime,
			Timeslice: p.Timeslice,
			Size:      p.Size,
			Killed:    p.Killed,
		})
	}
	return infos
}
