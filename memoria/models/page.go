package models

// NoPage marca la ausencia de enlace en el anillo LRU.
const NoPage int32 = -1

// PageDescriptor describe una página física. Mientras la página está residente
// queda enlazada en el anillo LRU por índice.
type PageDescriptor struct {
	VA       uint32
	Table    *PageTable
	Prev     int32
	Next     int32
	Resident bool
}

// Reset deja el descriptor en estado libre.
func (d *PageDescriptor) Reset() {
	d.VA = 0
	d.Table = nil
	d.Prev = NoPage
	d.Next = NoPage
	d.Resident = false
}

// PageInfo es la vista exportable de una página residente.
type PageInfo struct {
	Frame int    `json:"frame"`
	VA    uint32 `json:"va"`
}
