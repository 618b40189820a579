package models

import "github.com/cockroachdb/errors"

type Config struct {
	TotalPages      int    `json:"total_pages"`
	ReservedPages   int    `json:"reserved_pages"`
	SwapSlots       int    `json:"swap_slots"`
	SwapFilePath    string `json:"swap_file_path"`
	SwapPreallocate bool   `json:"swap_preallocate"`
	DumpPath        string `json:"dump_path"`
}

// Stats es la foto de ocupación que se expone por la API y en los dumps.
type Stats struct {
	TotalPages    int `json:"total_pages"`
	ManagedPages  int `json:"managed_pages"`
	FreePages     int `json:"free_pages"`
	ResidentPages int `json:"resident_pages"`
	SwapSlots     int `json:"swap_slots"`
	SwapUsed      int `json:"swap_used"`
}

func (c *Config) Validate() error {
	if c.TotalPages <= 0 {
		return errors.Newf("total_pages debe ser positivo, se recibió %d", c.TotalPages)
	}
	if c.ReservedPages < 1 || c.ReservedPages >= c.TotalPages {
		return errors.Newf("reserved_pages debe estar entre 1 y %d, se recibió %d", c.TotalPages-1, c.ReservedPages)
	}
	if uint64(c.TotalPages)*PageSize > KernBase {
		return errors.Newf("total_pages %d excede el espacio físico direccionable", c.TotalPages)
	}
	if c.SwapSlots < 2 || c.SwapSlots > MaxSwapSlots {
		return errors.Newf("swap_slots debe estar entre 2 y %d, se recibió %d", MaxSwapSlots, c.SwapSlots)
	}
	return nil
}
