//go:build !linux

package services

import (
	"io"

	"github.com/cockroachdb/errors"
)

func (d *FileDevice) readAt(buf []byte, off int64) error {
	n, err := d.file.ReadAt(buf, off)
	if errors.Is(err, io.EOF) {
		clear(buf[n:])
		return nil
	}
	return err
}

func (d *FileDevice) writeAt(buf []byte, off int64) error {
	_, err := d.file.WriteAt(buf, off)
	return err
}

func (d *FileDevice) preallocate(size int64) error {
	return d.file.Truncate(size)
}
