package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/models"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/services"
	"github.com/sisoputnfrba/tp-xv6-core/utils/web/server"
)

func parsePID(request *http.Request) (int, error) {
	pid, err := strconv.Atoi(request.URL.Query().Get("pid"))
	if err != nil || pid <= 0 {
		return 0, errors.New("Parámetro pid inválido")
	}
	return pid, nil
}

// statusFor traduce los errores de la tabla de procesos a códigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNoProcess):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidPriority):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrKillInit):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func GetProcessesHandler(table *services.ProcTable) func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		slog.Debug("Kernel: Solicitud recibida para listar los procesos.")
		server.SendJsonResponse(writer, table.Procs())
	}
}

func GetPriorityHandler(table *services.ProcTable) func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		pid, err := parsePID(request)
		if err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}

		priority, err := table.GetPriority(pid)
		if err != nil {
			http.Error(writer, err.Error(), statusFor(err))
			return
		}
		server.SendJsonResponse(writer, models.NiceRequest{PID: pid, Priority: priority})
	}
}

func SetPriorityHandler(table *services.ProcTable) func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		var nice models.NiceRequest
		if err := json.NewDecoder(request.Body).Decode(&nice); err != nil {
			http.Error(writer, "Error al decodificar el cuerpo de la solicitud", http.StatusBadRequest)
			return
		}
		slog.Debug(fmt.Sprintf("BODY: %+v", nice))

		if err := table.SetPriority(nice.PID, nice.Priority); err != nil {
			http.Error(writer, err.Error(), statusFor(err))
			return
		}
		server.SendJsonResponse(writer, nice)
	}
}

func KillProcessHandler(table *services.ProcTable) func(http.ResponseWriter, *http.Request) {
	return func(writer http.ResponseWriter, request *http.Request) {
		pid, err := parsePID(request)
		if err != nil {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		}

		if err := table.Kill(pid); err != nil {
			http.Error(writer, err.Error(), statusFor(err))
			return
		}
		slog.Info(fmt.Sprintf("## (%d) Marcado para finalizar", pid))
		writer.WriteHeader(http.StatusOK)
	}
}
