package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/helpers"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// BlockDevice es el almacenamiento de respaldo del swap. Cada slot ocupa una
// página y las operaciones bloquean hasta completarse.
type BlockDevice interface {
	ReadBlock(buf []byte, slot uint32) error
	WriteBlock(buf []byte, slot uint32) error
	Close() error
}

// MemDevice guarda los slots en memoria. Se usa cuando no se configura un archivo de swap.
type MemDevice struct {
	mu     sync.Mutex
	blocks []byte
}

func NewMemDevice(slots int) *MemDevice {
	return &MemDevice{blocks: make([]byte, slots*models.PageSize)}
}

func (d *MemDevice) block(slot uint32, n int) ([]byte, error) {
	off := int(slot) * models.PageSize
	if n != models.PageSize || off+models.PageSize > len(d.blocks) {
		return nil, errors.Newf("bloque %d inválido (buffer de %d bytes)", slot, n)
	}
	return d.blocks[off : off+models.PageSize], nil
}

func (d *MemDevice) ReadBlock(buf []byte, slot uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	block, err := d.block(slot, len(buf))
	if err != nil {
		return err
	}
	copy(buf, block)
	return nil
}

func (d *MemDevice) WriteBlock(buf []byte, slot uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	block, err := d.block(slot, len(buf))
	if err != nil {
		return err
	}
	copy(block, buf)
	return nil
}

func (d *MemDevice) Close() error {
	return nil
}

// FileDevice guarda los slots en un archivo, uno a continuación del otro.
type FileDevice struct {
	file  *os.File
	slots int
}

// OpenFileDevice abre (o crea) el archivo de swap. Con preallocate se reserva
// en disco el espacio de todos los slots.
func OpenFileDevice(path string, slots int, preallocate bool) (*FileDevice, error) {
	helpers.CreateDirectory(filepath.Dir(path))
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "no se pudo abrir el archivo de swap %s", path)
	}

	dev := &FileDevice{file: file, slots: slots}
	if preallocate {
		if err := dev.preallocate(int64(slots) * models.PageSize); err != nil {
			file.Close()
			return nil, errors.Wrapf(err, "no se pudo reservar espacio en %s", path)
		}
	}

	slog.Debug(fmt.Sprintf("Swap: archivo %s listo para %d slots", path, slots))
	return dev, nil
}

func (d *FileDevice) check(slot uint32, n int) error {
	if n != models.PageSize || int(slot) >= d.slots {
		return errors.Newf("bloque %d inválido (buffer de %d bytes)", slot, n)
	}
	return nil
}

func (d *FileDevice) ReadBlock(buf []byte, slot uint32) error {
	if err := d.check(slot, len(buf)); err != nil {
		return err
	}
	return d.readAt(buf, int64(slot)*models.PageSize)
}

func (d *FileDevice) WriteBlock(buf []byte, slot uint32) error {
	if err := d.check(slot, len(buf)); err != nil {
		return err
	}
	return d.writeAt(buf, int64(slot)*models.PageSize)
}

func (d *FileDevice) Close() error {
	return d.file.Close()
}

// OpenSwapDevice elige el dispositivo según la configuración.
func OpenSwapDevice(cfg models.Config) (BlockDevice, error) {
	if cfg.SwapFilePath == "" {
		return NewMemDevice(cfg.SwapSlots), nil
	}
	return OpenFileDevice(cfg.SwapFilePath, cfg.SwapSlots, cfg.SwapPreallocate)
}
