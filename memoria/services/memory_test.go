package services

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

func newTestMemory(t *testing.T, totalPages, reserved, swapSlots int) *Memory {
	t.Helper()
	cfg := models.Config{TotalPages: totalPages, ReservedPages: reserved, SwapSlots: swapSlots, DumpPath: t.TempDir()}
	m, err := NewMemory(cfg, NewMemDevice(swapSlots))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return m
}

func pattern(i int) []byte {
	return bytes.Repeat([]byte{byte(0x40 + i)}, models.PageSize)
}

// fillPages escribe en cada página del espacio un patrón distinto.
func fillPages(t *testing.T, m *Memory, table *models.PageTable, pages int) {
	t.Helper()
	for i := 0; i < pages; i++ {
		if err := m.CopyOut(table, uint32(i*models.PageSize), pattern(i)); err != nil {
			t.Fatalf("Expected no error writing page %d, got: %v", i, err)
		}
	}
}

func checkPages(t *testing.T, m *Memory, table *models.PageTable, pages int) {
	t.Helper()
	buf := make([]byte, models.PageSize)
	for i := 0; i < pages; i++ {
		if err := m.CopyIn(table, uint32(i*models.PageSize), buf); err != nil {
			t.Fatalf("Expected no error reading page %d, got: %v", i, err)
		}
		if !bytes.Equal(buf, pattern(i)) {
			t.Errorf("Expected page %d to hold 0x%x, got 0x%x", i, 0x40+i, buf[0])
		}
	}
}

func swappedSlots(table *models.PageTable, pages int) map[uint32]uint32 {
	slots := make(map[uint32]uint32)
	for i := 0; i < pages; i++ {
		va := uint32(i * models.PageSize)
		if e := table.Lookup(va); e.Kind == models.Swapped {
			slots[va] = e.Slot
		}
	}
	return slots
}

func TestMemory_BootPartition(t *testing.T) {
	m := newTestMemory(t, 16, 3, 8)

	stats := m.Stats()
	if stats.ManagedPages != 13 || stats.FreePages != 13 || stats.ResidentPages != 0 {
		t.Errorf("Expected 13 managed and free pages, got %+v", stats)
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestMemory_GrowShrinkKeepsPartition(t *testing.T) {
	m := newTestMemory(t, 16, 2, 16)
	table := models.NewPageTable()

	sz, err := m.Grow(table, 0, 5*models.PageSize+10)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sz != 5*models.PageSize+10 {
		t.Errorf("Expected size %d, got %d", 5*models.PageSize+10, sz)
	}
	if m.LRU.Len() != 6 {
		t.Errorf("Expected 6 resident pages, got %d", m.LRU.Len())
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	sz, err = m.Shrink(table, sz, 2*models.PageSize)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sz != 2*models.PageSize || m.LRU.Len() != 2 {
		t.Errorf("Expected 2 resident pages at size %d, got %d at size %d", 2*models.PageSize, m.LRU.Len(), sz)
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if err := m.Destroy(table); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m.Stats().FreePages != 14 {
		t.Errorf("Expected all 14 pages free, got %d", m.Stats().FreePages)
	}
}

func TestMemory_EvictionAndSwapIn(t *testing.T) {
	m := newTestMemory(t, 8, 2, 16)
	table := models.NewPageTable()

	if _, err := m.Grow(table, 0, 6*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	fillPages(t, m, table, 6)
	if m.Stats().FreePages != 0 {
		t.Fatalf("Expected memory to be exhausted, got %d free pages", m.Stats().FreePages)
	}

	sz, err := m.Grow(table, 6*models.PageSize, 7*models.PageSize)
	if err != nil {
		t.Fatalf("Expected eviction to make room, got: %v", err)
	}
	if sz != 7*models.PageSize {
		t.Errorf("Expected size %d, got %d", 7*models.PageSize, sz)
	}

	slots := swappedSlots(table, 6)
	if len(slots) != 1 {
		t.Fatalf("Expected one swapped page, got %v", slots)
	}
	for va, slot := range slots {
		if slot == 0 || !m.Swap.IsOccupied(slot) {
			t.Errorf("Expected va 0x%x to reference an occupied slot, got %d", va, slot)
		}
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	for va, slot := range slots {
		if err := m.ResolveMissingPage(table, va); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if e := table.Lookup(va); e.Kind != models.Present {
			t.Errorf("Expected va 0x%x to be present, got %v", va, e)
		}
		if m.Swap.IsOccupied(slot) {
			t.Errorf("Expected slot %d to be freed after swap in", slot)
		}
	}

	// Leer todo obliga a ir y volver de swap varias veces.
	checkPages(t, m, table, 6)
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestMemory_StaleRingEntryReturnsPage(t *testing.T) {
	m := newTestMemory(t, 8, 2, 16)
	table := models.NewPageTable()

	if _, err := m.Grow(table, 0, 6*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	fillPages(t, m, table, 6)

	// La PTE de va 0 deja de mapear su página sin pasar por Shrink.
	*table.Walk(0, false) = 0

	if _, err := m.Grow(table, 6*models.PageSize, 7*models.PageSize); err != nil {
		t.Fatalf("Expected eviction to make room, got: %v", err)
	}
	if got := m.Stats().FreePages; got != 1 {
		t.Errorf("Expected the stale page back in the free list, got %d free pages", got)
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestMemory_OutOfMemoryLeavesSizeUnchanged(t *testing.T) {
	m := newTestMemory(t, 6, 2, 3)
	table := models.NewPageTable()

	if _, err := m.Grow(table, 0, 2*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	fillPages(t, m, table, 2)

	sz, err := m.Grow(table, 2*models.PageSize, 10*models.PageSize)
	if !errors.Is(err, models.ErrOutOfMemory) {
		t.Fatalf("Expected ErrOutOfMemory, got: %v", err)
	}
	if !errors.Is(err, models.ErrNoSwapSpace) {
		t.Errorf("Expected the cause to be ErrNoSwapSpace, got: %v", err)
	}
	if models.IsFatal(err) {
		t.Errorf("Expected recoverable error, got fatal: %v", err)
	}
	if sz != 2*models.PageSize {
		t.Errorf("Expected size to stay at %d, got %d", 2*models.PageSize, sz)
	}

	for va := uint32(2 * models.PageSize); va < 10*models.PageSize; va += models.PageSize {
		if e := table.Lookup(va); e.Kind != models.Unmapped {
			t.Errorf("Expected va 0x%x to be unmapped after rollback, got %v", va, e)
		}
	}
	if used := len(swappedSlots(table, 2)); m.Swap.Used() != used {
		t.Errorf("Expected %d swap slots in use, got %d", used, m.Swap.Used())
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	checkPages(t, m, table, 2)
}

func TestMemory_ShrinkHandlesEveryEntryKind(t *testing.T) {
	m := newTestMemory(t, 8, 2, 8)
	table := models.NewPageTable()

	if _, err := m.Grow(table, 0, models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	slot, err := m.Swap.AllocateSlot()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	m.lockMaps()
	*table.Walk(2*models.PageSize, true) = models.SwappedEntry(slot).Encode()
	m.unlockMaps()

	// va PageSize queda como hueco nunca mapeado.
	sz, err := m.Shrink(table, 3*models.PageSize, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sz != 0 {
		t.Errorf("Expected size 0, got %d", sz)
	}
	if m.Swap.IsOccupied(slot) {
		t.Errorf("Expected slot %d to be freed", slot)
	}
	if m.LRU.Len() != 0 || m.Stats().FreePages != 6 {
		t.Errorf("Expected every page free, got %+v", m.Stats())
	}
	for va := uint32(0); va < 3*models.PageSize; va += models.PageSize {
		if e := table.Lookup(va); e.Kind != models.Unmapped {
			t.Errorf("Expected va 0x%x to be unmapped, got %v", va, e)
		}
	}
}

func TestMemory_DuplicateIndependence(t *testing.T) {
	m := newTestMemory(t, 10, 2, 32)
	parent := models.NewPageTable()

	if _, err := m.Grow(parent, 0, 9*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	fillPages(t, m, parent, 9)
	if len(swappedSlots(parent, 9)) == 0 {
		t.Fatal("Expected the parent to have swapped pages before duplicating")
	}

	child, err := m.Duplicate(parent, 9*models.PageSize)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	parentSlots := swappedSlots(parent, 9)
	seen := make(map[uint32]bool)
	for _, slot := range parentSlots {
		seen[slot] = true
	}
	for va, slot := range swappedSlots(child, 9) {
		if seen[slot] {
			t.Errorf("Expected child va 0x%x to use its own slot, got shared slot %d", va, slot)
		}
	}

	checkPages(t, m, child, 9)

	if err := m.CopyOut(child, 0, pattern(99)); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	checkPages(t, m, parent, 9)

	if err := m.Destroy(child); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for va, slot := range swappedSlots(parent, 9) {
		if !m.Swap.IsOccupied(slot) {
			t.Errorf("Expected parent slot %d for va 0x%x to survive the child", slot, va)
		}
	}
	checkPages(t, m, parent, 9)
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestMemory_DuplicateRejectsSizeBeyondKernBase(t *testing.T) {
	m := newTestMemory(t, 8, 2, 8)
	table := models.NewPageTable()
	freeBefore := m.Stats().FreePages

	for _, size := range []uint32{models.KernBase + models.PageSize, 0xFFFFFFFF} {
		child, err := m.Duplicate(table, size)
		if !errors.Is(err, models.ErrInvalidAddress) || child != nil {
			t.Errorf("Expected ErrInvalidAddress for size 0x%x, got %v", size, err)
		}
	}
	if got := m.Stats().FreePages; got != freeBefore {
		t.Errorf("Expected %d free pages, got %d", freeBefore, got)
	}
}

func TestMemory_DuplicateFailureTearsDownChild(t *testing.T) {
	m := newTestMemory(t, 6, 2, 3)
	parent := models.NewPageTable()

	if _, err := m.Grow(parent, 0, 4*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	before := m.Swap.Used()

	child, err := m.Duplicate(parent, 4*models.PageSize)
	if !errors.Is(err, models.ErrOutOfMemory) && !errors.Is(err, models.ErrNoSwapSpace) {
		t.Fatalf("Expected an out of memory error, got: %v", err)
	}
	if child != nil {
		t.Error("Expected no child table")
	}
	if used := len(swappedSlots(parent, 4)); m.Swap.Used() != used || used < before {
		t.Errorf("Expected only parent slots in use (%d), got %d", used, m.Swap.Used())
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

type failingDevice struct {
	*MemDevice
}

func (d *failingDevice) WriteBlock(buf []byte, slot uint32) error {
	return errors.New("disco roto")
}

func TestMemory_DeviceErrorIsRecoverable(t *testing.T) {
	cfg := models.Config{TotalPages: 4, ReservedPages: 1, SwapSlots: 8}
	m, err := NewMemory(cfg, &failingDevice{MemDevice: NewMemDevice(8)})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	table := models.NewPageTable()

	sz, err := m.Grow(table, 0, 5*models.PageSize)
	if !errors.Is(err, models.ErrDeviceError) || !errors.Is(err, models.ErrOutOfMemory) {
		t.Fatalf("Expected ErrOutOfMemory caused by ErrDeviceError, got: %v", err)
	}
	if models.IsFatal(err) {
		t.Errorf("Expected recoverable error, got fatal: %v", err)
	}
	if sz != 0 || m.Swap.Used() != 0 {
		t.Errorf("Expected size 0 and no slots in use, got size %d and %d slots", sz, m.Swap.Used())
	}
	if err := m.CheckPartition(); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

func TestMemory_ResolveMissingPageUnmapped(t *testing.T) {
	m := newTestMemory(t, 4, 1, 4)
	table := models.NewPageTable()

	if err := m.ResolveMissingPage(table, 0x1234); !errors.Is(err, models.ErrUnmapped) {
		t.Errorf("Expected ErrUnmapped, got: %v", err)
	}
	if err := m.CopyIn(table, 0, make([]byte, 8)); !errors.Is(err, models.ErrUnmapped) {
		t.Errorf("Expected ErrUnmapped, got: %v", err)
	}
}

func TestMemory_LoadInitCode(t *testing.T) {
	m := newTestMemory(t, 4, 1, 4)
	table := models.NewPageTable()
	code := []byte{0x6a, 0x00, 0xb8, 0x07}

	if err := m.LoadInitCode(table, code); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	buf := make([]byte, 8)
	if err := m.CopyIn(table, 0, buf); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !bytes.Equal(buf, append(code, 0, 0, 0, 0)) {
		t.Errorf("Expected %v, got %v", append(code, 0, 0, 0, 0), buf)
	}

	err := m.LoadInitCode(models.NewPageTable(), make([]byte, models.PageSize))
	if !errors.Is(err, models.ErrInvalidAddress) {
		t.Errorf("Expected ErrInvalidAddress, got: %v", err)
	}
}

func TestMemory_CopyCrossesPages(t *testing.T) {
	m := newTestMemory(t, 8, 1, 4)
	table := models.NewPageTable()
	if _, err := m.Grow(table, 0, 2*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data := []byte("cruza el borde de página")
	va := uint32(models.PageSize - 5)
	if err := m.CopyOut(table, va, data); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := make([]byte, len(data))
	if err := m.CopyIn(table, va, got); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Expected %q, got %q", data, got)
	}

	pte := table.Walk(models.PageSize, false)
	if *pte&models.PteA == 0 || *pte&models.PteD == 0 {
		t.Errorf("Expected accessed and dirty bits, got 0x%x", uint32(*pte))
	}
}

func TestMemory_Dump(t *testing.T) {
	m := newTestMemory(t, 8, 2, 8)
	table := models.NewPageTable()
	if _, err := m.Grow(table, 0, 2*models.PageSize); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	data, err := m.DumpJSON()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	var dump struct {
		Stats      models.Stats          `json:"stats"`
		LRU        []struct{ Frame int } `json:"lru"`
		FreeFrames []int                 `json:"free_frames"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		t.Fatalf("Expected valid JSON, got: %v", err)
	}
	if dump.Stats.ResidentPages != 2 || len(dump.LRU) != 2 || len(dump.FreeFrames) != 4 {
		t.Errorf("Expected 2 resident and 4 free pages, got %+v", dump)
	}

	for _, label := range []string{"../escaped", "sub/dir", ".", ""} {
		if _, err := m.ExecuteDump(label); !errors.Is(err, models.ErrInvalidLabel) {
			t.Errorf("Expected ErrInvalidLabel for %q, got %v", label, err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(m.Config().DumpPath), "escaped-*"))
	if len(matches) != 0 {
		t.Errorf("Expected no dump outside the dump directory, got %v", matches)
	}

	result, err := m.ExecuteDump("test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, path := range []string{result.JSONPath, result.PNGPath} {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty file %s, got: %v", path, err)
		}
	}
}
