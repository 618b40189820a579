package models

import memModels "github.com/sisoputnfrba/tp-xv6-core/memoria/models"

type ProcState int

const (
	StateUnused ProcState = iota
	StateEmbryo
	StateSleeping
	StateRunnable
	StateRunning
	StateZombie
)

func (s ProcState) String() string {
	switch s {
	case StateUnused:
		return "UNUSED"
	case StateEmbryo:
		return "EMBRYO"
	case StateSleeping:
		return "SLEEPING"
	case StateRunnable:
		return "RUNNABLE"
	case StateRunning:
		return "RUNNING"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

const (
	NProc           = 64
	MinPriority     = 0
	MaxPriority     = 39
	DefaultPriority = 20
	BaselineWeight  = 1024
)

// Weights traduce la prioridad (nice) a peso. La prioridad 20 es la base de 1024.
var Weights = [MaxPriority + 1]uint64{
	88761, 71755, 56483, 46273, 36291,
	29154, 23254, 18705, 14949, 11916,
	9548, 7620, 6100, 4904, 3906,
	3121, 2501, 1991, 1586, 1277,
	1024, 820, 655, 526, 423,
	355, 272, 215, 172, 137,
	110, 87, 70, 56, 45,
	36, 29, 23, 18, 15,
}

func ValidPriority(priority int) bool {
	return priority >= MinPriority && priority <= MaxPriority
}

// Proc es la entrada de la tabla de procesos. Todos los campos de
// planificación se leen y escriben con el lock de la tabla tomado.
type Proc struct {
	PID      int
	Name     string
	State    ProcState
	Priority int
	Weight   uint64

	VRuntime  uint64
	Runtime   uint64
	Timeslice uint64
	SliceUsed uint64
	CPU       int // CPU que lo ejecuta mientras está RUNNING

	Size      uint32
	PageTable *memModels.PageTable
	Parent    *Proc
	Chan      any
	Killed    bool

	// ME cuenta cuántas veces entró el proceso a cada estado.
	ME map[ProcState]int
}

// ProcInfo es la vista de un proceso que se expone por la API.
type ProcInfo struct {
	PID       int    `json:"pid"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Priority  int    `json:"priority"`
	Weight    uint64 `json:"weight"`
	VRuntime  uint64 `json:"vruntime"`
	Runtime   uint64 `json:"runtime"`
	Timeslice uint64 `json:"timeslice"`
	Size      uint32 `json:"size"`
	Killed    bool   `json:"killed"`
}

type NiceRequest struct {
	PID      int `json:"pid"`
	Priority int `json:"priority"`
}
