package services

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// Memory es el dueño de toda la memoria física: la RAM simulada, el allocator,
// el anillo LRU y el swap. Vive lo mismo que el kernel.
//
// Orden de locks: LRU.mu -> ptMu -> SwapSpace.mu. El lock del allocator se toma
// solo y nunca mientras se desaloja.
type Memory struct {
	cfg   models.Config
	ram   []byte
	Alloc *Allocator
	LRU   *LRU
	Swap  *SwapSpace

	// ptMu protege toda lectura o escritura de PTEs de cualquier espacio de direcciones.
	ptMu sync.Mutex
}

// NewMemory arma la memoria física y carga la lista de libres en dos etapas:
// la primera mitad sin lock, como en el arranque con un solo contexto, y el
// resto con el lock ya activo.
func NewMemory(cfg models.Config, dev BlockDevice) (*Memory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ram := make([]byte, cfg.TotalPages*models.PageSize)
	start := uint32(cfg.ReservedPages * models.PageSize)
	end := uint32(cfg.TotalPages * models.PageSize)

	m := &Memory{
		cfg:   cfg,
		ram:   ram,
		Alloc: NewAllocator(ram, start, end),
		LRU:   NewLRU(cfg.TotalPages),
		Swap:  NewSwapSpace(dev, cfg.SwapSlots),
	}
	m.Alloc.SetReclaimer(m.evict)

	split := models.PageRoundDown(start + (end-start)/2)
	if err := m.Alloc.FreeRange(start, split); err != nil {
		return nil, err
	}
	m.Alloc.EnableLocking()
	if err := m.Alloc.FreeRange(split, end); err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("## Memoria inicializada - Páginas: %d - Reservadas: %d - Slots de swap: %d",
		cfg.TotalPages, cfg.ReservedPages, m.Swap.Capacity()))
	return m, nil
}

func (m *Memory) Config() models.Config {
	return m.cfg
}

func (m *Memory) lockMaps() {
	m.LRU.mu.Lock()
	m.ptMu.Lock()
}

func (m *Memory) unlockMaps() {
	m.ptMu.Unlock()
	m.LRU.mu.Unlock()
}

func (m *Memory) Stats() models.Stats {
	return models.Stats{
		TotalPages:    m.cfg.TotalPages,
		ManagedPages:  m.Alloc.ManagedPages(),
		FreePages:     m.Alloc.FreePages(),
		ResidentPages: m.LRU.Len(),
		SwapSlots:     m.Swap.Capacity(),
		SwapUsed:      m.Swap.Used(),
	}
}

// CheckPartition verifica que cada página administrada esté en la lista de
// libres o en el anillo LRU, y en uno solo de los dos.
func (m *Memory) CheckPartition() error {
	seen := make(map[uint32]bool)

	for _, pa := range m.Alloc.FreeList() {
		if !m.Alloc.Contains(pa) {
			return errors.Newf("la página 0x%x de la lista de libres no es administrada", pa)
		}
		if seen[pa] {
			return errors.Newf("la página 0x%x aparece dos veces en la lista de libres", pa)
		}
		seen[pa] = true
	}

	for _, page := range m.LRU.Snapshot() {
		pa := uint32(page.Frame) * models.PageSize
		if !m.Alloc.Contains(pa) {
			return errors.Newf("la página residente 0x%x no es administrada", pa)
		}
		if seen[pa] {
			return errors.Newf("la página 0x%x está libre y residente a la vez", pa)
		}
		seen[pa] = true
	}

	if managed := m.Alloc.ManagedPages(); len(seen) != managed {
		return errors.Newf("libres + residentes = %d, se esperaban %d páginas", len(seen), managed)
	}
	return nil
}

func (m *Memory) Close() error {
	return m.Swap.Close()
}
