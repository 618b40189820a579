package services

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// LRU es el anillo de páginas residentes. Los descriptores se indexan por
// número de página física y se enlazan por índice.
type LRU struct {
	mu    sync.Mutex
	descs []models.PageDescriptor
	head  int32
	count int
}

func NewLRU(totalPages int) *LRU {
	l := &LRU{descs: make([]models.PageDescriptor, totalPages), head: models.NoPage}
	for i := range l.descs {
		l.descs[i].Reset()
	}
	return l
}

func (l *LRU) index(pa uint32) (int32, error) {
	idx := pa / models.PageSize
	if pa%models.PageSize != 0 || int(idx) >= len(l.descs) {
		return models.NoPage, errors.Wrapf(models.ErrInvalidAddress, "página física 0x%x sin descriptor", pa)
	}
	return int32(idx), nil
}

// Track marca como residente la página pa, mapeada en va de table.
func (l *LRU) Track(pa uint32, table *models.PageTable, va uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trackLocked(pa, table, va)
}

// Untrack saca del anillo la página pa, que tiene que estar mapeada en va de table.
func (l *LRU) Untrack(pa uint32, table *models.PageTable, va uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.untrackLocked(pa, table, va)
}

func (l *LRU) trackLocked(pa uint32, table *models.PageTable, va uint32) error {
	idx, err := l.index(pa)
	if err != nil {
		return err
	}
	d := &l.descs[idx]
	if d.Resident {
		return errors.Wrapf(models.ErrMappingConflict, "la página 0x%x ya está residente en va 0x%x", pa, d.VA)
	}

	d.VA = va
	d.Table = table
	d.Resident = true
	l.insertLocked(idx)
	slog.Debug(fmt.Sprintf("LRU: página 0x%x residente en va 0x%x", pa, va))
	return nil
}

func (l *LRU) untrackLocked(pa uint32, table *models.PageTable, va uint32) error {
	idx, err := l.index(pa)
	if err != nil {
		return err
	}
	d := &l.descs[idx]
	if !d.Resident || d.Table != table || d.VA != va {
		return errors.Wrapf(models.ErrInvalidAddress, "la página 0x%x no está residente en va 0x%x", pa, va)
	}

	l.deleteLocked(idx)
	d.Reset()
	return nil
}

// insertLocked enlaza idx antes de la cabeza y lo convierte en la nueva cabeza.
func (l *LRU) insertLocked(idx int32) {
	d := &l.descs[idx]
	if l.head == models.NoPage {
		d.Prev, d.Next = idx, idx
	} else {
		head := &l.descs[l.head]
		tail := &l.descs[head.Prev]
		d.Next = l.head
		d.Prev = head.Prev
		tail.Next = idx
		head.Prev = idx
	}
	l.head = idx
	l.count++
}

func (l *LRU) deleteLocked(idx int32) {
	d := &l.descs[idx]
	if l.count == 1 {
		l.head = models.NoPage
	} else {
		l.descs[d.Prev].Next = d.Next
		l.descs[d.Next].Prev = d.Prev
		if l.head == idx {
			l.head = d.Next
		}
	}
	d.Prev, d.Next = models.NoPage, models.NoPage
	l.count--
}

// selectVictimLocked recorre el anillo desde la cabeza. A las páginas con el
// bit de acceso encendido se les apaga y la cabeza avanza; la primera página
// sin el bit es la víctima. Las páginas cuya PTE ya no las mapea se
// descartan del anillo y se entregan a discard para devolverlas al allocator.
func (l *LRU) selectVictimLocked(accessed func(d *models.PageDescriptor, pa uint32) (used bool, valid bool), discard func(pa uint32)) (int32, bool) {
	limit := 2*l.count + 1
	for step := 0; step < limit && l.head != models.NoPage; step++ {
		idx := l.head
		d := &l.descs[idx]
		pa := uint32(idx) * models.PageSize

		used, valid := accessed(d, pa)
		if !valid {
			slog.Warn(fmt.Sprintf("LRU: se descarta la página 0x%x, su PTE ya no la mapea", pa))
			l.deleteLocked(idx)
			d.Reset()
			discard(pa)
			continue
		}
		if used {
			l.head = d.Next
			continue
		}
		return idx, true
	}
	return models.NoPage, false
}

func (l *LRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Snapshot devuelve las páginas residentes recorriendo el anillo desde la cabeza.
func (l *LRU) Snapshot() []models.PageInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	pages := make([]models.PageInfo, 0, l.count)
	if l.head == models.NoPage {
		return pages
	}
	idx := l.head
	for {
		pages = append(pages, models.PageInfo{Frame: int(idx), VA: l.descs[idx].VA})
		idx = l.descs[idx].Next
		if idx == l.head {
			break
		}
	}
	return pages
}
