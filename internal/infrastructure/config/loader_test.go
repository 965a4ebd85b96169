package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/felixgeelhaar/dcov/internal/application"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	content := `output: build/coverage
html: true
reportOn: [lib/, bin/]
unit: [test/unit]
functional: [test/e2e]
functionalRoot: web
services:
  appPort: 9090
  seleniumJar: tool/selenium.jar
tools:
  pub: /opt/dart/bin/pub
`
	cfg, err := Loader{}.Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output != "build/coverage" || !cfg.HTML {
		t.Fatalf("unexpected output settings: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.ReportOn, []string{"lib/", "bin/"}) {
		t.Fatalf("unexpected reportOn: %v", cfg.ReportOn)
	}
	if !reflect.DeepEqual(cfg.Functional, []string{"test/e2e"}) || cfg.FunctionalRoot != "web" {
		t.Fatalf("unexpected functional settings: %v %q", cfg.Functional, cfg.FunctionalRoot)
	}
	if cfg.Services.AppPort != 9090 {
		t.Fatalf("expected app port 9090, got %d", cfg.Services.AppPort)
	}
	if cfg.Services.DriverPort != 4444 {
		t.Fatalf("expected default driver port, got %d", cfg.Services.DriverPort)
	}
	if cfg.Tools.Pub != "/opt/dart/bin/pub" || cfg.Tools.Dart != "dart" {
		t.Fatalf("unexpected tools: %+v", cfg.Tools)
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Loader{}.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, application.DefaultConfig()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := (Loader{}).Load(writeConfig(t, "unit: [\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := (Loader{}).Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := application.DefaultConfig()
	cfg.HTML = true
	cfg.Functional = []string{"test/e2e"}
	cfg.Services.SeleniumJar = "tool/selenium.jar"
	cfg.Tools.Genhtml = "/usr/local/bin/genhtml"

	var buf bytes.Buffer
	if err := Write(&buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "html: true") {
		t.Fatalf("expected html flag in output:\n%s", out)
	}
	if strings.Contains(out, "contentShell") {
		t.Fatalf("default tools should be omitted:\n%s", out)
	}

	path := writeConfig(t, out)
	loaded, err := Loader{}.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", cfg, loaded)
	}
}

func TestExistsMissing(t *testing.T) {
	ok, err := (Loader{}).Exists(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Fatalf("expected missing to be false")
	}
}

func TestExistsPresent(t *testing.T) {
	ok, err := (Loader{}).Exists(writeConfig(t, "html: false\n"))
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Fatalf("expected config to exist")
	}
}
