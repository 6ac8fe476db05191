package config

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	cmtcfg "github.com/cometbft/cometbft/config"
)

var appTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("appConfigTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if appTemplate, err = tmpl.Parse(defaultAppTemplate); err != nil {
		panic(err)
	}
}

// WriteConfigFile renders the cometbft sections followed by the [app]
// section and writes them to configFilePath.
func WriteConfigFile(configFilePath string, cfg *Config) error {
	cmtcfg.WriteConfigFile(configFilePath, cfg.Config)

	var buffer bytes.Buffer
	if err := appTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}
	f, err := os.OpenFile(configFilePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(buffer.Bytes())
	return err
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go.
//
//go:embed app.toml.tpl
var defaultAppTemplate string
