package helpers

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fogleman/gg"
)

// crea un directorio en el path especificado.
func CreateDirectory(dir string) {
	err := os.MkdirAll(dir, os.ModePerm)

	if err != nil {
		slog.Error(fmt.Sprintf("Error al crear el directorio %s: %v", dir, err))
		return
	}

	slog.Debug(fmt.Sprintf("Directorio %s creado o ya existía.", dir))
}

// GetDumpName arma el nombre de un dump a partir de una etiqueta y la hora actual.
func GetDumpName(label string, ext string) string {
	timestamp := time.Now().Format("20060102-150405")
	return fmt.Sprintf("%s-%s.%s", label, timestamp, ext)
}

// FrameState es el estado de una página física dentro del mapa de frames.
type FrameState int

const (
	FrameReserved FrameState = iota
	FrameFree
	FrameResident
	FrameHead
)

const (
	cellSize    = 12
	cellPadding = 1
	gridColumns = 32
)

// RenderFrameMap dibuja una grilla con una celda por página física y la guarda como PNG.
//
// Parámetros:
//   - path: ubicación del archivo PNG
//   - frames: estado de cada página, indexado por número de página
//
// Ejemplo:
//
//	frames := []helpers.FrameState{helpers.FrameReserved, helpers.FrameFree, helpers.FrameResident}
//	err := helpers.RenderFrameMap("./dumps/frames.png", frames)
func RenderFrameMap(path string, frames []FrameState) error {
	rows := (len(frames) + gridColumns - 1) / gridColumns
	if rows == 0 {
		rows = 1
	}

	dc := gg.NewContext(gridColumns*cellSize, rows*cellSize)
	dc.SetRGB(0.15, 0.15, 0.15)
	dc.Clear()

	for i, state := range frames {
		x := float64((i % gridColumns) * cellSize)
		y := float64((i / gridColumns) * cellSize)

		switch state {
		case FrameReserved:
			dc.SetRGB(0.45, 0.45, 0.45)
		case FrameFree:
			dc.SetRGB(0.95, 0.95, 0.95)
		case FrameResident:
			dc.SetRGB(0.20, 0.65, 0.30)
		case FrameHead:
			dc.SetRGB(0.20, 0.40, 0.85)
		}
		dc.DrawRectangle(x+cellPadding, y+cellPadding, cellSize-2*cellPadding, cellSize-2*cellPadding)
		dc.Fill()
	}

	return dc.SavePNG(path)
}
