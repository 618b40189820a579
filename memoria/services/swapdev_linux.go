//go:build linux

package services

import (
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

func (d *FileDevice) readAt(buf []byte, off int64) error {
	for done := 0; done < len(buf); {
		n, err := unix.Pread(int(d.file.Fd()), buf[done:], off+int64(done))
		if err != nil {
			return errors.Wrap(err, "pread")
		}
		if n == 0 {
			// Un bloque nunca escrito se lee como ceros.
			clear(buf[done:])
			return nil
		}
		done += n
	}
	return nil
}

func (d *FileDevice) writeAt(buf []byte, off int64) error {
	for done := 0; done < len(buf); {
		n, err := unix.Pwrite(int(d.file.Fd()), buf[done:], off+int64(done))
		if err != nil {
			return errors.Wrap(err, "pwrite")
		}
		if n == 0 {
			return errors.Wrap(io.ErrShortWrite, "pwrite")
		}
		done += n
	}
	return nil
}

func (d *FileDevice) preallocate(size int64) error {
	// Modo 0: reserva el rango y extiende el archivo.
	return unix.Fallocate(int(d.file.Fd()), 0, 0, size)
}
