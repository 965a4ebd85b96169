package application

import "fmt"

// LoadConfig loads the config file at path, falling back to DefaultConfig
// when it does not exist.
func LoadConfig(loader ConfigLoader, path string) (Config, error) {
	exists, err := loader.Exists(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return DefaultConfig(), nil
	}
	cfg, err := loader.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings a run depends on.
func (c Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("output directory is required")
	}
	if len(c.Functional) > 0 {
		if c.FunctionalRoot == "" {
			return fmt.Errorf("functional tests need a functional root")
		}
		if c.Services.SeleniumJar == "" {
			return fmt.Errorf("functional tests need services.seleniumJar")
		}
		if c.Services.AppPort <= 0 || c.Services.DriverPort <= 0 {
			return fmt.Errorf("functional tests need services.appPort and services.driverPort")
		}
	}
	return nil
}

// RunOptions converts the config into options for a single run.
func (c Config) RunOptions() RunOptions {
	return RunOptions{
		Unit:       c.Unit,
		Functional: c.Functional,
		HTML:       c.HTML,
		OutputDir:  c.Output,
		ReportOn:   c.ReportOn,
	}
}
