package models

// PageTable es el directorio de un espacio de direcciones. Las tablas de
// segundo nivel se crean a demanda y viven fuera de las páginas físicas
// administradas por el allocator.
type PageTable struct {
	dir [DirEntries]*[TableEntries]PTE
}

func NewPageTable() *PageTable {
	return &PageTable{}
}

func PDX(va uint32) uint32 {
	return (va >> PDXShift) & (DirEntries - 1)
}

func PTX(va uint32) uint32 {
	return (va >> PTXShift) & (TableEntries - 1)
}

// NextDirBoundary devuelve la primera dirección cubierta por el siguiente
// slot del directorio.
func NextDirBoundary(va uint32) uint32 {
	return (PDX(va) + 1) << PDXShift
}

// Walk devuelve la PTE que corresponde a va. Si la tabla de segundo nivel no
// existe y create es false devuelve nil.
func (pt *PageTable) Walk(va uint32, create bool) *PTE {
	table := pt.dir[PDX(va)]
	if table == nil {
		if !create {
			return nil
		}
		table = new([TableEntries]PTE)
		pt.dir[PDX(va)] = table
	}
	return &table[PTX(va)]
}

// Lookup decodifica la entrada de va sin crear tablas intermedias.
func (pt *PageTable) Lookup(va uint32) Entry {
	pte := pt.Walk(va, false)
	if pte == nil {
		return Entry{Kind: Unmapped}
	}
	return pte.Decode()
}

// Release descarta las tablas de segundo nivel. Las entradas ya tienen que
// haber sido liberadas por quien llama.
func (pt *PageTable) Release() {
	for i := range pt.dir {
		pt.dir[i] = nil
	}
}
