package services

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// Operaciones sobre espacios de direcciones de usuario. Quien llama garantiza
// que un mismo espacio no sea modificado por dos actores a la vez; el desalojo
// de páginas ajenas se coordina con lockMaps.

// mapPage instala pa en va y la registra como residente.
func (m *Memory) mapPage(table *models.PageTable, va, pa uint32, perm models.PTE) error {
	m.lockMaps()
	defer m.unlockMaps()

	pte := table.Walk(va, true)
	if *pte != 0 {
		return errors.Wrapf(models.ErrMappingConflict, "remap de va 0x%x (%v)", va, pte.Decode())
	}
	*pte = models.PresentEntry(pa, perm).Encode()
	return m.LRU.trackLocked(pa, table, va)
}

// LoadInitCode mapea en la dirección 0 una página con el código del primer proceso.
func (m *Memory) LoadInitCode(table *models.PageTable, code []byte) error {
	if len(code) >= models.PageSize {
		return errors.Wrapf(models.ErrInvalidAddress, "el código inicial ocupa %d bytes, más de una página", len(code))
	}

	pa, err := m.Alloc.AllocPage()
	if err != nil {
		return err
	}
	page := m.Alloc.Page(pa)
	clear(page)
	copy(page, code)

	if err := m.mapPage(table, 0, pa, models.PteW|models.PteU); err != nil {
		_ = m.Alloc.FreePage(pa)
		return err
	}
	return nil
}

// Grow lleva el espacio de oldSz a newSz mapeando páginas en cero. Si algo
// falla deshace lo mapeado en esta llamada y devuelve oldSz.
func (m *Memory) Grow(table *models.PageTable, oldSz, newSz uint32) (uint32, error) {
	if newSz >= models.KernBase {
		return oldSz, errors.Wrapf(models.ErrOutOfMemory, "el tamaño 0x%x invade el espacio del kernel", newSz)
	}
	if newSz < oldSz {
		return oldSz, nil
	}

	for a := models.PageRoundUp(oldSz); a < newSz; a += models.PageSize {
		pa, err := m.Alloc.AllocPage()
		if err != nil {
			slog.Warn(fmt.Sprintf("## Sin memoria al crecer de 0x%x a 0x%x, se revierte", oldSz, newSz))
			_, _ = m.Shrink(table, a, oldSz)
			return oldSz, err
		}
		clear(m.Alloc.Page(pa))

		if err := m.mapPage(table, a, pa, models.PteW|models.PteU); err != nil {
			_ = m.Alloc.FreePage(pa)
			_, _ = m.Shrink(table, a, oldSz)
			return oldSz, err
		}
	}
	return newSz, nil
}

// Shrink libera lo que hay entre newSz y oldSz. Cada entrada puede estar
// presente (se libera la página), en swap (se libera el slot) o vacía.
func (m *Memory) Shrink(table *models.PageTable, oldSz, newSz uint32) (uint32, error) {
	if newSz >= oldSz {
		return oldSz, nil
	}

	var (
		pages []uint32
		slots []uint32
		err   error
	)

	m.lockMaps()
	for a := models.PageRoundUp(newSz); a < oldSz; a += models.PageSize {
		pte := table.Walk(a, false)
		if pte == nil {
			// Sin tabla de segundo nivel: se saltea todo el rango del directorio.
			a = models.NextDirBoundary(a) - models.PageSize
			continue
		}

		entry := pte.Decode()
		switch entry.Kind {
		case models.Present:
			if err = m.LRU.untrackLocked(entry.Addr, table, a); err != nil {
				break
			}
			pages = append(pages, entry.Addr)
		case models.Swapped:
			slots = append(slots, entry.Slot)
		}
		if err != nil {
			break
		}
		*pte = 0
	}
	m.unlockMaps()

	for _, pa := range pages {
		err = errors.CombineErrors(err, m.Alloc.FreePage(pa))
	}
	for _, slot := range slots {
		err = errors.CombineErrors(err, m.Swap.FreeSlot(slot))
	}
	if err != nil {
		return oldSz, err
	}
	return newSz, nil
}

// Destroy libera todas las páginas y slots del espacio y descarta sus tablas.
func (m *Memory) Destroy(table *models.PageTable) error {
	_, err := m.Shrink(table, models.KernBase, 0)
	table.Release()
	return err
}

// Duplicate crea una copia independiente de los primeros size bytes de parent.
// Las páginas en swap se copian a un slot nuevo para que padre e hijo no
// compartan ninguno.
func (m *Memory) Duplicate(parent *models.PageTable, size uint32) (*models.PageTable, error) {
	if size > models.KernBase {
		return nil, errors.Wrapf(models.ErrInvalidAddress, "el tamaño 0x%x invade el espacio del kernel", size)
	}

	child := models.NewPageTable()
	buf := make([]byte, models.PageSize)

	for va := uint32(0); va < size; va += models.PageSize {
		m.lockMaps()
		entry := parent.Lookup(va)
		if entry.Kind == models.Present {
			copy(buf, m.Alloc.Page(entry.Addr))
		}
		m.unlockMaps()

		var err error
		switch entry.Kind {
		case models.Present:
			err = m.copyResident(child, va, buf, entry.Flags)
		case models.Swapped:
			err = m.copySwapped(child, va, buf, entry.Slot)
		}

		if err != nil {
			slog.Warn(fmt.Sprintf("## Falló la duplicación en va 0x%x: %v", va, err))
			if derr := m.Destroy(child); derr != nil {
				return nil, errors.CombineErrors(err, derr)
			}
			return nil, err
		}
	}
	return child, nil
}

func (m *Memory) copyResident(child *models.PageTable, va uint32, buf []byte, flags models.PTE) error {
	pa, err := m.Alloc.AllocPage()
	if err != nil {
		return err
	}
	copy(m.Alloc.Page(pa), buf)

	if err := m.mapPage(child, va, pa, flags&^(models.PteA|models.PteD)); err != nil {
		_ = m.Alloc.FreePage(pa)
		return err
	}
	return nil
}

func (m *Memory) copySwapped(child *models.PageTable, va uint32, buf []byte, slot uint32) error {
	if err := m.Swap.ReadIn(buf, slot); err != nil {
		return err
	}
	newSlot, err := m.Swap.AllocateSlot()
	if err != nil {
		return err
	}
	if err := m.Swap.WriteOut(buf, newSlot); err != nil {
		_ = m.Swap.FreeSlot(newSlot)
		return err
	}

	m.lockMaps()
	defer m.unlockMaps()

	pte := child.Walk(va, true)
	if *pte != 0 {
		_ = m.Swap.FreeSlot(newSlot)
		return errors.Wrapf(models.ErrMappingConflict, "remap de va 0x%x en el hijo", va)
	}
	*pte = models.SwappedEntry(newSlot).Encode()
	return nil
}

// ResolveMissingPage trae de swap la página de va. Es lo que invoca el trap de
// page fault; no hace otra clasificación del fallo.
func (m *Memory) ResolveMissingPage(table *models.PageTable, va uint32) error {
	va = models.PageRoundDown(va)

	m.lockMaps()
	entry := table.Lookup(va)
	m.unlockMaps()

	switch entry.Kind {
	case models.Present:
		return nil
	case models.Unmapped:
		return errors.Wrapf(models.ErrUnmapped, "page fault en va 0x%x", va)
	}

	pa, err := m.Alloc.AllocPage()
	if err != nil {
		return err
	}
	if err := m.Swap.ReadIn(m.Alloc.Page(pa), entry.Slot); err != nil {
		_ = m.Alloc.FreePage(pa)
		return err
	}

	m.lockMaps()
	pte := table.Walk(va, false)
	if pte == nil || *pte != entry.Encode() {
		// Otro contexto ya resolvió el fallo.
		m.unlockMaps()
		return m.Alloc.FreePage(pa)
	}
	*pte = models.PresentEntry(pa, models.PteW|models.PteU).Encode()
	err = m.LRU.trackLocked(pa, table, va)
	m.unlockMaps()
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("## Swap in - VA: 0x%x - Slot: %d - Página física: 0x%x", va, entry.Slot, pa))
	return m.Swap.FreeSlot(entry.Slot)
}

// CopyOut escribe data en el espacio de usuario a partir de va.
func (m *Memory) CopyOut(table *models.PageTable, va uint32, data []byte) error {
	return m.copyUser(table, va, data, true)
}

// CopyIn lee del espacio de usuario a partir de va hasta llenar buf.
func (m *Memory) CopyIn(table *models.PageTable, va uint32, buf []byte) error {
	return m.copyUser(table, va, buf, false)
}

// copyUser recorre las páginas como lo haría la MMU: enciende el bit de acceso
// (y el de modificación al escribir) y ante una página en swap resuelve el
// fallo y reintenta.
func (m *Memory) copyUser(table *models.PageTable, va uint32, buf []byte, write bool) error {
	if uint64(va)+uint64(len(buf)) > models.KernBase {
		return errors.Wrapf(models.ErrUnmapped, "rango [0x%x, +%d) fuera del espacio de usuario", va, len(buf))
	}

	for done := 0; done < len(buf); {
		cur := va + uint32(done)
		base := models.PageRoundDown(cur)
		off := cur - base
		n := min(models.PageSize-int(off), len(buf)-done)

		m.lockMaps()
		pte := table.Walk(base, false)
		entry := models.Entry{}
		if pte != nil {
			entry = pte.Decode()
		}
		if entry.Kind == models.Present && entry.Flags&models.PteU != 0 {
			*pte |= models.PteA
			page := m.Alloc.Page(entry.Addr)
			if write {
				*pte |= models.PteD
				copy(page[off:int(off)+n], buf[done:done+n])
			} else {
				copy(buf[done:done+n], page[off:int(off)+n])
			}
			m.unlockMaps()
			done += n
			continue
		}
		m.unlockMaps()

		if entry.Kind != models.Swapped {
			return errors.Wrapf(models.ErrUnmapped, "va 0x%x", cur)
		}
		if err := m.ResolveMissingPage(table, base); err != nil {
			return err
		}
	}
	return nil
}
