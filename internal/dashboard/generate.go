// Package dashboard renders the Grafana dashboard for soil records stored in
// GreptimeDB.
package dashboard

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed soil-dashboard.json.tmpl
var soilTemplate string

// OutputName is the file Render writes into outDir.
const OutputName = "soil-dashboard.json"

// Params fills the non-environment parts of the template.
type Params struct {
	Table            string
	MoistureWarnRaw  int
	BatteryWarnVolts float64
	BatteryMinVolts  float64
}

// Render parses the dashboard template and writes the rendered dashboard to
// outDir. The datasource uid comes from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir string, p Params) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	if p.Table == "" {
		return fmt.Errorf("dashboard: table name required")
	}

	t, err := template.New(OutputName).Funcs(funcMap).Parse(soilTemplate)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(outDir, OutputName))
	if err != nil {
		return err
	}
	if err := t.Execute(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
