package models

import "github.com/cockroachdb/errors"

var (
	ErrOutOfMemory     = errors.New("out of memory")
	ErrNoSwapSpace     = errors.New("no swap space")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrMappingConflict = errors.New("mapping conflict")
	ErrDeviceError     = errors.New("swap device error")
	ErrUnmapped        = errors.New("address not mapped")
	ErrInvalidLabel    = errors.New("invalid dump label")
)

// IsFatal informa si el error proviene de un uso indebido de la memoria por
// parte del kernel. Ante estos errores el kernel se detiene.
func IsFatal(err error) bool {
	return errors.IsAny(err, ErrInvalidAddress, ErrMappingConflict)
}
