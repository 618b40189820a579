package models

// Geometría de la memoria física y del esquema de paginación de dos niveles.
const (
	PageSize  = 4096
	PageShift = 12

	// KernBase es la primera dirección virtual reservada al kernel; el espacio de usuario vive por debajo.
	KernBase = 0x80000000

	DirEntries   = 1024
	TableEntries = 1024
	PDXShift     = 22
	PTXShift     = 12

	// MaxSwapSlots es la cantidad de slots que cubre un bitmap de una página.
	MaxSwapSlots = PageSize * 8
)

// Bits de una entrada de tabla de páginas.
const (
	PteP PTE = 0x001 // presente
	PteW PTE = 0x002 // escritura
	PteU PTE = 0x004 // usuario
	PteA PTE = 0x020 // accedida
	PteD PTE = 0x040 // modificada

	pteFlagsMask PTE = 0xFFF
)

// JunkByte es el patrón con el que se rellena una página al liberarla.
const JunkByte = 0x01

// PageRoundUp redondea sz al múltiplo de página siguiente.
func PageRoundUp(sz uint32) uint32 {
	return (sz + PageSize - 1) &^ (PageSize - 1)
}

// PageRoundDown redondea a al múltiplo de página anterior.
func PageRoundDown(a uint32) uint32 {
	return a &^ (PageSize - 1)
}
