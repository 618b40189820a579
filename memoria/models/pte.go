package models

import "fmt"

// PTE es la entrada de tabla de páginas tal como la ve el hardware.
//
// Con el bit P encendido la entrada guarda la dirección física y los permisos.
// Con el bit P apagado y un valor distinto de cero guarda el slot de swap
// desplazado un bit (slot<<1). Una entrada en cero no mapea nada.
type PTE uint32

type EntryKind int

const (
	Unmapped EntryKind = iota
	Present
	Swapped
)

func (k EntryKind) String() string {
	switch k {
	case Present:
		return "PRESENT"
	case Swapped:
		return "SWAPPED"
	default:
		return "UNMAPPED"
	}
}

// Entry es la vista decodificada de una PTE.
type Entry struct {
	Kind  EntryKind
	Addr  uint32 // dirección física, sólo si Kind == Present
	Flags PTE    // permisos, sólo si Kind == Present
	Slot  uint32 // slot de swap, sólo si Kind == Swapped
}

func PresentEntry(pa uint32, flags PTE) Entry {
	return Entry{Kind: Present, Addr: PageRoundDown(pa), Flags: (flags | PteP) & pteFlagsMask}
}

func SwappedEntry(slot uint32) Entry {
	return Entry{Kind: Swapped, Slot: slot}
}

// Decode interpreta la entrada según el bit de presencia.
func (p PTE) Decode() Entry {
	switch {
	case p&PteP != 0:
		return Entry{Kind: Present, Addr: p.Addr(), Flags: p.Flags()}
	case p == 0:
		return Entry{Kind: Unmapped}
	default:
		return Entry{Kind: Swapped, Slot: uint32(p) >> 1}
	}
}

// Encode traduce la entrada a su representación de hardware. El slot 0 nunca
// se entrega, por lo que un Swapped codificado jamás se confunde con Unmapped.
func (e Entry) Encode() PTE {
	switch e.Kind {
	case Present:
		return PTE(PageRoundDown(e.Addr)) | (e.Flags & pteFlagsMask) | PteP
	case Swapped:
		return PTE(e.Slot << 1)
	default:
		return 0
	}
}

func (e Entry) String() string {
	switch e.Kind {
	case Present:
		return fmt.Sprintf("PRESENT(pa=0x%x flags=0x%x)", e.Addr, uint32(e.Flags))
	case Swapped:
		return fmt.Sprintf("SWAPPED(slot=%d)", e.Slot)
	default:
		return "UNMAPPED"
	}
}

func (p PTE) Addr() uint32 {
	return uint32(p &^ pteFlagsMask)
}

func (p PTE) Flags() PTE {
	return p & pteFlagsMask
}

func (p PTE) IsPresent() bool {
	return p&PteP != 0
}
