package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/dcov/internal/application"
)

// DefaultPath is the config file looked up in the project root.
const DefaultPath = ".dcov.yaml"

type Loader struct{}

type fileConfig struct {
	Output         string       `yaml:"output,omitempty"`
	HTML           bool         `yaml:"html"`
	ReportOn       []string     `yaml:"reportOn,omitempty"`
	Unit           []string     `yaml:"unit,omitempty"`
	Functional     []string     `yaml:"functional,omitempty"`
	FunctionalRoot string       `yaml:"functionalRoot,omitempty"`
	Services       fileServices `yaml:"services,omitempty"`
	Tools          fileTools    `yaml:"tools,omitempty"`
}

type fileServices struct {
	AppPort     int    `yaml:"appPort,omitempty"`
	DriverPort  int    `yaml:"driverPort,omitempty"`
	SeleniumJar string `yaml:"seleniumJar,omitempty"`
}

type fileTools struct {
	Dart         string `yaml:"dart,omitempty"`
	Pub          string `yaml:"pub,omitempty"`
	ContentShell string `yaml:"contentShell,omitempty"`
	Dart2JS      string `yaml:"dart2js,omitempty"`
	Genhtml      string `yaml:"genhtml,omitempty"`
	Java         string `yaml:"java,omitempty"`
}

func (l Loader) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Load reads path. Settings the file leaves out keep their defaults.
func (l Loader) Load(path string) (application.Config, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- user supplied config path
	if err != nil {
		return application.Config{}, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return application.Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := application.DefaultConfig()
	setString(&cfg.Output, fc.Output)
	cfg.HTML = fc.HTML
	if fc.ReportOn != nil {
		cfg.ReportOn = fc.ReportOn
	}
	if fc.Unit != nil {
		cfg.Unit = fc.Unit
	}
	cfg.Functional = fc.Functional
	setString(&cfg.FunctionalRoot, fc.FunctionalRoot)

	setInt(&cfg.Services.AppPort, fc.Services.AppPort)
	setInt(&cfg.Services.DriverPort, fc.Services.DriverPort)
	setString(&cfg.Services.SeleniumJar, fc.Services.SeleniumJar)

	setString(&cfg.Tools.Dart, fc.Tools.Dart)
	setString(&cfg.Tools.Pub, fc.Tools.Pub)
	setString(&cfg.Tools.ContentShell, fc.Tools.ContentShell)
	setString(&cfg.Tools.Dart2JS, fc.Tools.Dart2JS)
	setString(&cfg.Tools.Genhtml, fc.Tools.Genhtml)
	setString(&cfg.Tools.Java, fc.Tools.Java)
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// Write encodes cfg in the config file format. Tools left at their
// defaults are omitted.
func Write(w io.Writer, cfg application.Config) error {
	defaults := application.DefaultTools()
	out := fileConfig{
		Output:         cfg.Output,
		HTML:           cfg.HTML,
		ReportOn:       cfg.ReportOn,
		Unit:           cfg.Unit,
		Functional:     cfg.Functional,
		FunctionalRoot: cfg.FunctionalRoot,
		Services: fileServices{
			AppPort:     cfg.Services.AppPort,
			DriverPort:  cfg.Services.DriverPort,
			SeleniumJar: cfg.Services.SeleniumJar,
		},
		Tools: fileTools{
			Dart:         nonDefault(cfg.Tools.Dart, defaults.Dart),
			Pub:          nonDefault(cfg.Tools.Pub, defaults.Pub),
			ContentShell: nonDefault(cfg.Tools.ContentShell, defaults.ContentShell),
			Dart2JS:      nonDefault(cfg.Tools.Dart2JS, defaults.Dart2JS),
			Genhtml:      nonDefault(cfg.Tools.Genhtml, defaults.Genhtml),
			Java:         nonDefault(cfg.Tools.Java, defaults.Java),
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(out)
}

func nonDefault(v, def string) string {
	if v == def {
		return ""
	}
	return v
}
