package services

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/helpers"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
)

// DumpResult indica dónde quedaron los archivos de un dump.
type DumpResult struct {
	JSONPath string `json:"json_path"`
	PNGPath  string `json:"png_path"`
}

// DumpJSON serializa el estado de la memoria física: ocupación, anillo LRU
// desde la cabeza, lista de libres y slots de swap ocupados.
func (m *Memory) DumpJSON() ([]byte, error) {
	stats := m.Stats()
	ring := m.LRU.Snapshot()
	free := m.Alloc.FreeList()
	slots := m.Swap.OccupiedSlots()

	w := jwriter.NewWriter()
	obj := w.Object()

	statsObj := obj.Name("stats").Object()
	statsObj.Name("total_pages").Int(stats.TotalPages)
	statsObj.Name("managed_pages").Int(stats.ManagedPages)
	statsObj.Name("free_pages").Int(stats.FreePages)
	statsObj.Name("resident_pages").Int(stats.ResidentPages)
	statsObj.Name("swap_slots").Int(stats.SwapSlots)
	statsObj.Name("swap_used").Int(stats.SwapUsed)
	statsObj.End()

	lruArr := obj.Name("lru").Array()
	for _, page := range ring {
		pageObj := lruArr.Object()
		pageObj.Name("frame").Int(page.Frame)
		pageObj.Name("va").String(fmt.Sprintf("0x%08x", page.VA))
		pageObj.End()
	}
	lruArr.End()

	freeArr := obj.Name("free_frames").Array()
	for _, pa := range free {
		freeArr.Int(int(pa / models.PageSize))
	}
	freeArr.End()

	swapArr := obj.Name("swap_slots_used").Array()
	for _, slot := range slots {
		swapArr.Int(int(slot))
	}
	swapArr.End()

	obj.End()

	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "error al serializar el dump")
	}
	return w.Bytes(), nil
}

// FrameMap devuelve el estado de cada página física para el mapa de frames.
func (m *Memory) FrameMap() []helpers.FrameState {
	frames := make([]helpers.FrameState, m.cfg.TotalPages)
	for i := range frames {
		if i >= m.cfg.ReservedPages {
			frames[i] = helpers.FrameFree
		}
	}
	for i, page := range m.LRU.Snapshot() {
		if i == 0 {
			frames[page.Frame] = helpers.FrameHead
		} else {
			frames[page.Frame] = helpers.FrameResident
		}
	}
	return frames
}

// checkDumpLabel exige que la etiqueta sea un nombre de archivo simple, así el
// dump queda siempre dentro de dump_path.
func checkDumpLabel(label string) error {
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) || filepath.Base(label) != label {
		return errors.Wrapf(models.ErrInvalidLabel, "etiqueta %q", label)
	}
	return nil
}

// ExecuteDump escribe el dump JSON y el mapa de frames en el directorio de dumps.
func (m *Memory) ExecuteDump(label string) (DumpResult, error) {
	if err := checkDumpLabel(label); err != nil {
		return DumpResult{}, err
	}
	slog.Info(fmt.Sprintf("## Memory Dump solicitado - %s", label))

	dir := m.cfg.DumpPath
	if dir == "" {
		dir = os.TempDir()
	}
	helpers.CreateDirectory(dir)

	data, err := m.DumpJSON()
	if err != nil {
		return DumpResult{}, err
	}

	result := DumpResult{
		JSONPath: filepath.Join(dir, helpers.GetDumpName(label, "json")),
		PNGPath:  filepath.Join(dir, helpers.GetDumpName(label, "png")),
	}

	if err := os.WriteFile(result.JSONPath, data, 0644); err != nil {
		slog.Error(fmt.Sprintf("error al crear archivo de dump: %v", err))
		return DumpResult{}, errors.Wrap(err, "fallo al escribir el dump")
	}
	if err := helpers.RenderFrameMap(result.PNGPath, m.FrameMap()); err != nil {
		slog.Error(fmt.Sprintf("error al dibujar el mapa de frames: %v", err))
		return DumpResult{}, errors.Wrap(err, "fallo al escribir el mapa de frames")
	}

	slog.Info(fmt.Sprintf("Memoria: Memory Dump completado en %s", result.JSONPath))
	return result, nil
}
