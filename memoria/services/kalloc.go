package services

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// endOfList es el valor que cierra la lista de páginas libres.
const endOfList uint32 = 0xFFFFFFFF

// Allocator entrega y recibe páginas físicas enteras. La lista de libres se
// guarda dentro de las propias páginas: los primeros 4 bytes de cada página
// libre contienen la dirección de la siguiente.
type Allocator struct {
	mu      sync.Mutex
	useLock atomic.Bool
	ram     []byte
	start   uint32
	end     uint32
	head    uint32
	reclaim func() error
}

// NewAllocator crea un allocator sobre ram que administra las páginas de [start, end).
// La lista arranca vacía y sin lock; se completa con FreeRange durante el arranque.
func NewAllocator(ram []byte, start, end uint32) *Allocator {
	return &Allocator{ram: ram, start: start, end: end, head: endOfList}
}

// SetReclaimer registra la función que libera una página cuando la lista se vacía.
func (a *Allocator) SetReclaimer(reclaim func() error) {
	a.reclaim = reclaim
}

// EnableLocking activa el lock. Hasta entonces hay un único contexto de
// ejecución y tomarlo no hace falta.
func (a *Allocator) EnableLocking() {
	a.useLock.Store(true)
}

func (a *Allocator) lock() {
	if a.useLock.Load() {
		a.mu.Lock()
	}
}

func (a *Allocator) unlock() {
	if a.useLock.Load() {
		a.mu.Unlock()
	}
}

// FreeRange agrega a la lista todas las páginas completas de [start, end).
func (a *Allocator) FreeRange(start, end uint32) error {
	for p := models.PageRoundUp(start); p+models.PageSize <= end; p += models.PageSize {
		if err := a.FreePage(p); err != nil {
			return err
		}
	}
	return nil
}

// FreePage devuelve la página pa a la lista. La página se rellena con basura
// antes de encolarla para que una referencia colgada se note.
func (a *Allocator) FreePage(pa uint32) error {
	if pa%models.PageSize != 0 || pa < a.start || pa >= a.end {
		return errors.Wrapf(models.ErrInvalidAddress, "free de la página 0x%x fuera de [0x%x, 0x%x)", pa, a.start, a.end)
	}

	page := a.ram[pa : pa+models.PageSize]
	for i := range page {
		page[i] = models.JunkByte
	}

	a.lock()
	binary.LittleEndian.PutUint32(page, a.head)
	a.head = pa
	a.unlock()
	return nil
}

func (a *Allocator) pop() (uint32, bool) {
	a.lock()
	defer a.unlock()

	if a.head == endOfList {
		return 0, false
	}
	pa := a.head
	a.head = binary.LittleEndian.Uint32(a.ram[pa:])
	return pa, true
}

// AllocPage saca una página de la lista. Si está vacía pide al reclaimer que
// desaloje una página y reintenta una sola vez.
func (a *Allocator) AllocPage() (uint32, error) {
	if pa, ok := a.pop(); ok {
		return pa, nil
	}

	if a.reclaim == nil {
		return 0, errors.WithStack(models.ErrOutOfMemory)
	}

	if err := a.reclaim(); err != nil {
		slog.Warn(fmt.Sprintf("## No se pudo liberar una página por swap: %v", err))
		return 0, errors.Mark(errors.Wrap(err, "no quedan páginas libres"), models.ErrOutOfMemory)
	}

	if pa, ok := a.pop(); ok {
		return pa, nil
	}
	return 0, errors.Wrap(models.ErrOutOfMemory, "la página liberada fue tomada por otro")
}

// Page devuelve la vista de los bytes de la página física pa.
func (a *Allocator) Page(pa uint32) []byte {
	return a.ram[pa : pa+models.PageSize : pa+models.PageSize]
}

// Contains informa si pa es una página administrada.
func (a *Allocator) Contains(pa uint32) bool {
	return pa%models.PageSize == 0 && pa >= a.start && pa < a.end
}

// ManagedPages es la cantidad de páginas de [start, end).
func (a *Allocator) ManagedPages() int {
	return int((a.end - models.PageRoundUp(a.start)) / models.PageSize)
}

// FreeList recorre la lista y devuelve las direcciones encoladas. El largo no
// se guarda: contarlo implica recorrerla.
func (a *Allocator) FreeList() []uint32 {
	a.lock()
	defer a.unlock()

	var pages []uint32
	for pa := a.head; pa != endOfList; pa = binary.LittleEndian.Uint32(a.ram[pa:]) {
		pages = append(pages, pa)
	}
	return pages
}

func (a *Allocator) FreePages() int {
	return len(a.FreeList())
}
