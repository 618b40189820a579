package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sisoputnfrba/tp-xv6-core/kctl/models"
	"github.com/sisoputnfrba/tp-xv6-core/kctl/services"
	"github.com/sisoputnfrba/tp-xv6-core/utils/config"
	"github.com/sisoputnfrba/tp-xv6-core/utils/log"
)

const ConfigPath = "kctl/configs/kctl.json"

const usage = `Uso: kctl <comando> [argumentos]
  ps                  lista los procesos
  nice <pid>          muestra la prioridad
  nice <pid> <prio>   cambia la prioridad (0-39)
  kill <pid>          marca el proceso para terminar
  stats               estadísticas de memoria
  dump [etiqueta]     vuelca la memoria (con etiqueta genera JSON y PNG)`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	config.InitConfig(ConfigPath, &models.KctlConfig)
	log.InitLogger("", models.KctlConfig.LogLevel)

	out, err := services.Execute(models.KctlConfig, os.Args[1], os.Args[2:])
	if err != nil {
		slog.Error(fmt.Sprintf("kctl %s: %v", os.Args[1], err))
		os.Exit(1)
	}
	fmt.Println(string(out))
}
