package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cockroachdb/errors"
	kernelModels "github.com/sisoputnfrba/tp-xv6-core/kernel/models"
	"github.com/sisoputnfrba/tp-xv6-core/kctl/models"
	"github.com/sisoputnfrba/tp-xv6-core/utils/web/client"
)

// Execute resuelve un subcomando contra el kernel y devuelve el cuerpo de la respuesta.
func Execute(cfg *models.Config, command string, args []string) ([]byte, error) {
	switch command {
	case "ps":
		return request(cfg, "GET", "kernel/procesos")
	case "stats":
		return request(cfg, "GET", "memoria/stats")
	case "dump":
		if len(args) > 0 {
			return request(cfg, "POST", "memoria/dump?label="+url.QueryEscape(args[0]))
		}
		return request(cfg, "GET", "memoria/dump")
	case "kill":
		pid, err := pidArg(args)
		if err != nil {
			return nil, err
		}
		return request(cfg, "POST", fmt.Sprintf("kernel/kill?pid=%d", pid))
	case "nice":
		pid, err := pidArg(args)
		if err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return request(cfg, "GET", fmt.Sprintf("kernel/nice?pid=%d", pid))
		}
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, errors.Wrapf(err, "prioridad inválida %q", args[1])
		}
		body, err := json.Marshal(kernelModels.NiceRequest{PID: pid, Priority: priority})
		if err != nil {
			return nil, err
		}
		return request(cfg, "PUT", "kernel/nice", body)
	default:
		return nil, errors.Newf("comando desconocido %q", command)
	}
}

func pidArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, errors.New("falta el pid")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errors.Wrapf(err, "pid inválido %q", args[0])
	}
	return pid, nil
}

func request(cfg *models.Config, method string, query string, bodies ...[]byte) ([]byte, error) {
	response, err := client.DoRequest(cfg.PortKernel, cfg.IpKernel, method, query, bodies...)
	if response != nil {
		defer response.Body.Close()
	}
	if err != nil {
		if response != nil && response.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(response.Body)
			return nil, errors.Wrapf(err, "%s", string(detail))
		}
		return nil, err
	}
	return io.ReadAll(response.Body)
}
