package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	kernelHandler "github.com/sisoputnfrba/tp-xv6-core/kernel/handlers"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/models"
	"github.com/sisoputnfrba/tp-xv6-core/kernel/services"
	memoryHandler "github.com/sisoputnfrba/tp-xv6-core/memoria/handlers"
	memServices "github.com/sisoputnfrba/tp-xv6-core/memoria/services"
	"github.com/sisoputnfrba/tp-xv6-core/utils/config"
	"github.com/sisoputnfrba/tp-xv6-core/utils/log"
	"github.com/sisoputnfrba/tp-xv6-core/utils/web/handlers"
	"github.com/sisoputnfrba/tp-xv6-core/utils/web/server"
)

const (
	ConfigPath = "kernel/configs/kernel.json"
	growEvery  = 5
)

// initCode ocupa la primera página del proceso init.
var initCode = []byte{0x6a, 0x00, 0x68, 0x00, 0x00, 0x00, 0x00, 0xb8, 0x07, 0x00, 0x00, 0x00, 0xcd, 0x40}

func main() {
	configPath := ConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config.InitConfig(configPath, &models.KernelConfig)
	log.InitLogger(models.KernelConfig.LogPath, models.KernelConfig.LogLevel)

	if err := models.KernelConfig.Validate(); err != nil {
		slog.Error(fmt.Sprintf("Configuración inválida: %v", err))
		os.Exit(1)
	}
	slog.Debug(fmt.Sprintf("Port Kernel: %d", models.KernelConfig.PortKernel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := memServices.OpenSwapDevice(models.KernelConfig.Memory)
	if err != nil {
		slog.Error(fmt.Sprintf("No se pudo abrir el dispositivo de swap: %v", err))
		os.Exit(1)
	}
	mem, err := memServices.NewMemory(models.KernelConfig.Memory, dev)
	if err != nil {
		slog.Error(fmt.Sprintf("No se pudo inicializar la memoria: %v", err))
		dev.Close()
		os.Exit(1)
	}
	defer mem.Close()

	schedCfg := models.KernelConfig.Scheduler
	table := services.NewProcTable(mem, schedCfg)

	initProc, err := table.UserInit(initCode)
	if err != nil {
		slog.Error(fmt.Sprintf("No se pudo crear el proceso init: %v", err))
		os.Exit(1)
	}
	for i := 0; i < schedCfg.Workload; i++ {
		if _, err := table.Fork(initProc); err != nil {
			slog.Warn(fmt.Sprintf("No se pudo crear el proceso de carga %d: %v", i, err))
			break
		}
	}

	switcher := &services.SimSwitcher{
		Table:        table,
		TickInterval: time.Duration(schedCfg.TickIntervalMs) * time.Millisecond,
		Program:      services.WorkloadProgram(schedCfg.TickUnit, growEvery, uint64(schedCfg.Lifetime)),
	}

	var wg sync.WaitGroup
	for cpu := 0; cpu < schedCfg.CPUs; cpu++ {
		wg.Add(1)
		go func(cpu int) {
			defer wg.Done()
			table.Run(ctx, cpu, switcher)
		}(cpu)
	}

	/* ----------> ENDPOINTS <----------*/
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", handlers.HandshakeHandler("Bienvenido al módulo de Kernel"))
	mux.HandleFunc("GET /kernel/procesos", kernelHandler.GetProcessesHandler(table))
	mux.HandleFunc("GET /kernel/nice", kernelHandler.GetPriorityHandler(table))
	mux.HandleFunc("PUT /kernel/nice", kernelHandler.SetPriorityHandler(table))
	mux.HandleFunc("POST /kernel/kill", kernelHandler.KillProcessHandler(table))
	mux.HandleFunc("GET /memoria/stats", memoryHandler.StatsHandler(mem))
	mux.HandleFunc("GET /memoria/dump", memoryHandler.DumpHandler(mem))
	mux.HandleFunc("POST /memoria/dump", memoryHandler.ExecuteDumpHandler(mem))

	if err := server.Serve(ctx, models.KernelConfig.PortKernel, mux); err != nil {
		slog.Error(fmt.Sprintf("error initializing server: %v", err))
		stop()
	}

	wg.Wait()
	if err := mem.CheckPartition(); err != nil {
		slog.Error(fmt.Sprintf("Partición de memoria inconsistente: %v", err))
	}
	slog.Info("Kernel detenido")
}
