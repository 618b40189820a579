package services

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// SwapSpace administra los slots del dispositivo de swap con un bitmap (1 = ocupado).
// Todo acceso al bitmap pasa por mu, incluido el par buscar/marcar de AllocateSlot.
type SwapSpace struct {
	mu     sync.Mutex
	dev    BlockDevice
	slots  int
	bitmap []byte
}

func NewSwapSpace(dev BlockDevice, slots int) *SwapSpace {
	return &SwapSpace{dev: dev, slots: slots}
}

// bitmapLocked materializa el bitmap en el primer uso. El slot 0 queda
// reservado: su codificación en una PTE coincidiría con una entrada vacía.
func (s *SwapSpace) bitmapLocked() []byte {
	if s.bitmap == nil {
		s.bitmap = make([]byte, models.PageSize)
		s.bitmap[0] |= 1
		slog.Debug(fmt.Sprintf("Swap: bitmap inicializado para %d slots", s.slots))
	}
	return s.bitmap
}

func (s *SwapSpace) checkSlot(slot uint32) error {
	if slot == 0 || int(slot) >= s.slots {
		return errors.Wrapf(models.ErrInvalidAddress, "slot de swap %d fuera de [1, %d)", slot, s.slots)
	}
	return nil
}

// AllocateSlot busca el primer slot libre y lo marca ocupado.
func (s *SwapSpace) AllocateSlot() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bitmap := s.bitmapLocked()
	for slot := 1; slot < s.slots; slot++ {
		if bitmap[slot/8]&(1<<(slot%8)) == 0 {
			bitmap[slot/8] |= 1 << (slot % 8)
			return uint32(slot), nil
		}
	}
	return 0, errors.WithStack(models.ErrNoSwapSpace)
}

// MarkSlot enciende o apaga el bit del slot. Repetir la operación no tiene efecto.
func (s *SwapSpace) MarkSlot(slot uint32, occupied bool) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bitmap := s.bitmapLocked()
	if occupied {
		bitmap[slot/8] |= 1 << (slot % 8)
	} else {
		bitmap[slot/8] &^= 1 << (slot % 8)
	}
	return nil
}

func (s *SwapSpace) IsOccupied(slot uint32) bool {
	if s.checkSlot(slot) != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitmapLocked()[slot/8]&(1<<(slot%8)) != 0
}

// FreeSlot libera un slot que ya no referencia ninguna PTE.
func (s *SwapSpace) FreeSlot(slot uint32) error {
	return s.MarkSlot(slot, false)
}

// WriteOut copia la página src al slot.
func (s *SwapSpace) WriteOut(src []byte, slot uint32) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if err := s.dev.WriteBlock(src, slot); err != nil {
		return errors.Mark(errors.Wrapf(err, "escritura del slot %d", slot), models.ErrDeviceError)
	}
	return nil
}

// ReadIn copia el contenido del slot a la página dst.
func (s *SwapSpace) ReadIn(dst []byte, slot uint32) error {
	if err := s.checkSlot(slot); err != nil {
		return err
	}
	if err := s.dev.ReadBlock(dst, slot); err != nil {
		return errors.Mark(errors.Wrapf(err, "lectura del slot %d", slot), models.ErrDeviceError)
	}
	return nil
}

// Used cuenta los slots ocupados sin contar el reservado.
func (s *SwapSpace) Used() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bitmap == nil {
		return 0
	}
	used := 0
	for slot := 1; slot < s.slots; slot++ {
		if s.bitmap[slot/8]&(1<<(slot%8)) != 0 {
			used++
		}
	}
	return used
}

// Capacity es la cantidad de slots utilizables.
func (s *SwapSpace) Capacity() int {
	return s.slots - 1
}

// OccupiedSlots devuelve los slots ocupados en orden creciente.
func (s *SwapSpace) OccupiedSlots() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots := []uint32{}
	if s.bitmap == nil {
		return slots
	}
	for slot := 1; slot < s.slots; slot++ {
		if s.bitmap[slot/8]&(1<<(slot%8)) != 0 {
			slots = append(slots, uint32(slot))
		}
	}
	return slots
}

func (s *SwapSpace) Close() error {
	return s.dev.Close()
}
