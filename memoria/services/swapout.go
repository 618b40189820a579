package services

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// evict elige una víctima con el algoritmo de segunda oportunidad y la manda a
// swap. Los pasos van en este orden: slot, escritura, PTE, anillo, allocator.
func (m *Memory) evict() error {
	m.lockMaps()
	defer m.unlockMaps()

	idx, ok := m.LRU.selectVictimLocked(func(d *models.PageDescriptor, pa uint32) (bool, bool) {
		pte := d.Table.Walk(d.VA, false)
		if pte == nil || !pte.IsPresent() || pte.Addr() != pa {
			return false, false
		}
		if *pte&models.PteA != 0 {
			*pte &^= models.PteA
			return true, true
		}
		return false, true
	}, func(pa uint32) {
		if err := m.Alloc.FreePage(pa); err != nil {
			slog.Error(fmt.Sprintf("## No se pudo devolver la página 0x%x: %v", pa, err))
		}
	})
	if !ok {
		return errors.Wrap(models.ErrOutOfMemory, "no hay páginas residentes para desalojar")
	}

	d := &m.LRU.descs[idx]
	pa := uint32(idx) * models.PageSize
	va := d.VA
	pte := d.Table.Walk(va, false)

	slot, err := m.Swap.AllocateSlot()
	if err != nil {
		return err
	}
	if err := m.Swap.WriteOut(m.Alloc.Page(pa), slot); err != nil {
		_ = m.Swap.FreeSlot(slot)
		return err
	}

	*pte = models.SwappedEntry(slot).Encode()
	m.LRU.deleteLocked(idx)
	d.Reset()

	if err := m.Alloc.FreePage(pa); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("## Swap out - VA: 0x%x - Página física: 0x%x - Slot: %d", va, pa, slot))
	return nil
}
