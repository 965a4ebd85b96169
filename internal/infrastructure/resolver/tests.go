// Package resolver expands test path arguments into concrete test files.
package resolver

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/pathutil"
)

const (
	sourceExt  = ".dart"
	testSuffix = "_test" + sourceExt
	// vendorDir is where pub links dependencies; tests below it belong to
	// other packages.
	vendorDir = "packages"
)

// TestResolver resolves file and directory arguments into test files.
type TestResolver struct {
	// Root is used to absolutize relative arguments. Defaults to the
	// working directory.
	Root string
}

// NewTestResolver creates a resolver rooted at dir.
func NewTestResolver(dir string) *TestResolver {
	return &TestResolver{Root: dir}
}

// Resolve resolves the unit and functional argument lists independently.
func (r *TestResolver) Resolve(unit, functional []string) (domain.TestSet, error) {
	unitFiles, err := r.Files(unit, domain.TestKindUnit)
	if err != nil {
		return domain.TestSet{}, err
	}
	functionalFiles, err := r.Files(functional, domain.TestKindFunctional)
	if err != nil {
		return domain.TestSet{}, err
	}
	return domain.TestSet{Unit: unitFiles, Functional: functionalFiles}, nil
}

// Files expands paths in input order. A file argument only has to be a
// source file; directories are searched recursively for *_test files
// outside the vendor directory. Paths that do not exist are ignored.
func (r *TestResolver) Files(paths []string, kind domain.TestKind) ([]domain.TestFile, error) {
	files := make([]domain.TestFile, 0)
	for _, p := range paths {
		abs, err := r.absolute(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if strings.HasSuffix(abs, sourceExt) {
				files = append(files, domain.TestFile{Path: abs, Kind: kind})
			}
			continue
		}
		if r.inVendor(abs) {
			continue
		}
		found, err := walkTests(abs)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			files = append(files, domain.TestFile{Path: f, Kind: kind})
		}
	}
	return files, nil
}

func (r *TestResolver) absolute(p string) (string, error) {
	root := r.Root
	if root == "" && !filepath.IsAbs(p) {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = wd
	}
	return pathutil.Abs(root, p), nil
}

// inVendor reports whether dir passes through the vendor directory. Only
// segments below Root count, so a project that itself lives under a
// "packages" directory still resolves.
func (r *TestResolver) inVendor(dir string) bool {
	rel := dir
	if r.Root != "" {
		if under, ok := pathutil.Under(r.Root, dir); ok {
			rel = under
		} else if filepath.Clean(dir) == filepath.Clean(r.Root) {
			return false
		}
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if segment == vendorDir {
			return true
		}
	}
	return false
}

// walkTests returns test files below dir in lexical walk order.
func walkTests(dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == vendorDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), testSuffix) {
			return nil
		}
		found = append(found, path)
		return nil
	})
	return found, err
}
