package config

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
)

// InitConfig lee el archivo de configuración y carga sus valores en config. Si no se puede leer, finaliza con panic.
//
// Parámetros:
//   - filePath: ubicacion donde se encuentra el archivo de configuracion
//   - config: puntero a cualquier tipo de estructura
//
// Ejemplo:
//
//	type TestConfig struct {
//		Name  string `json:"name"`
//		Value int    `json:"value"`
//	}
//	func main() {
//		var testConfig TestConfig
//		config.InitConfig("./test.json", &testConfig)
//	}
func InitConfig(filePath string, config any) {
	if err := Load(filePath, config); err != nil {
		panic(err)
	}
}

// Load es como InitConfig pero devuelve el error en lugar de finalizar.
func Load(filePath string, config any) error {
	return setupConfig(filePath, config)
}

func setupConfig(filePath string, config any) error {
	configFile, err := os.Open(filePath)
	if err != nil {
		return errors.Wrapf(err, "error al abrir el archivo de configuración %s", filePath)
	}
	defer configFile.Close()

	jsonParser := json.NewDecoder(configFile)
	jsonParser.DisallowUnknownFields()

	if err := jsonParser.Decode(config); err != nil {
		return errors.Wrapf(err, "error al configurar el archivo %s", filePath)
	}
	return nil
}
