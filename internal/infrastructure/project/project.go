// Package project locates the Dart package a run operates on.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const pubspecName = "pubspec.yaml"

// ErrNoPubspec is returned when no pubspec.yaml is found above the start
// directory.
var ErrNoPubspec = errors.New("project root not found: no pubspec.yaml in current or parent directories")

// Project is a Dart package root.
type Project struct {
	Root string
	Name string
}

type pubspec struct {
	Name string `yaml:"name"`
}

// Find searches start and its parents for pubspec.yaml.
func Find(start string) (Project, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return Project{}, err
	}
	for {
		path := filepath.Join(dir, pubspecName)
		if _, err := os.Stat(path); err == nil {
			name, err := readName(path)
			if err != nil {
				return Project{}, err
			}
			return Project{Root: dir, Name: name}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Project{}, ErrNoPubspec
		}
		dir = parent
	}
}

func readName(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- pubspec in the project tree
	if err != nil {
		return "", err
	}
	var spec pubspec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return spec.Name, nil
}

// DefaultReportOn restricts reports to the package's own libraries.
func (p Project) DefaultReportOn() []string {
	return []string{"lib" + string(filepath.Separator)}
}
