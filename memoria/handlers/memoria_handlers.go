package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/models"
	"github.com/sisoputnfrba/tp-xv6-core/memoria/services"
	"github.com/sisoputnfrba/tp-xv6-core/utils/web/server"
)

func StatsHandler(mem *services.Memory) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		server.SendJsonResponse(w, mem.Stats())
	}
}

// DumpHandler devuelve el dump JSON sin escribirlo a disco.
func DumpHandler(mem *services.Memory) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := mem.DumpJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// ExecuteDumpHandler escribe el dump y el mapa de frames en dump_path.
func ExecuteDumpHandler(mem *services.Memory) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		label := r.URL.Query().Get("label")
		if label == "" {
			label = "memoria"
		}

		result, err := mem.ExecuteDump(label)
		if errors.Is(err, models.ErrInvalidLabel) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			slog.Error(fmt.Sprintf("Error en el dump de memoria: %v", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		server.SendJsonResponse(w, result)
	}
}
