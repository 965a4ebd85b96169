package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/pathutil"
)

const (
	dirName      = "collection"
	mergedName   = "coverage.json"
	fileExt      = ".json"
	tagSeparator = "_"
)

// Store owns the transient collection directory below the output directory.
type Store struct {
	// Dir holds one collection file per harvested port.
	Dir string
	// Root is the project root test tags are computed against.
	Root   string
	Logger *zap.Logger
}

// NewStore creates a store rooted at outputDir.
func NewStore(outputDir, root string) *Store {
	return &Store{Dir: filepath.Join(outputDir, dirName), Root: root}
}

// MergedPath is where Merge writes the combined document.
func (s *Store) MergedPath() string {
	return filepath.Join(filepath.Dir(s.Dir), mergedName)
}

// Prepare creates the collection directory.
func (s *Store) Prepare() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create collection dir: %w", err)
	}
	return nil
}

// PathFor returns the collection file for a unit test.
func (s *Store) PathFor(test string) string {
	return filepath.Join(s.Dir, Tag(s.Root, test)+fileExt)
}

// PathForPort returns the collection file for one port of a functional test.
func (s *Store) PathForPort(test string, port int) string {
	return filepath.Join(s.Dir, Tag(s.Root, test)+tagSeparator+strconv.Itoa(port)+fileExt)
}

// Cleanup removes the collection directory. A missing directory is not an
// error.
func (s *Store) Cleanup() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("remove collection dir: %w", err)
	}
	return nil
}

// Tag names a test by its path relative to root with separators flattened.
func Tag(root, test string) string {
	rel, ok := pathutil.Under(root, test)
	if !ok {
		rel = test
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".dart")
	rel = strings.TrimLeft(rel, "/")
	return strings.ReplaceAll(rel, "/", tagSeparator)
}

// Merge concatenates the collections in files, in order, into MergedPath and
// removes the collection directory. Files that cannot be read or fail schema
// validation are left out. Nothing is written when no usable collection
// remains.
func (s *Store) Merge(files []string) (domain.Collection, error) {
	if len(files) == 0 {
		return domain.Collection{}, domain.ErrEmptyMergeInput
	}
	logger := s.logger()

	inputs := make([]domain.Collection, 0, len(files))
	for _, file := range files {
		c, err := Read(file)
		if err != nil {
			logger.Warn("skipping collection", zap.String("file", file), zap.Error(err))
			continue
		}
		inputs = append(inputs, c)
	}
	merged, err := domain.MergeCollections(inputs)
	if err != nil {
		return domain.Collection{}, err
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("encode merged collection: %w", err)
	}
	out := s.MergedPath()
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return domain.Collection{}, fmt.Errorf("write %s: %w", out, err)
	}
	if err := s.Cleanup(); err != nil {
		return domain.Collection{}, err
	}
	logger.Info("merged coverage",
		zap.Int("collections", len(inputs)),
		zap.Int("entries", len(merged.Coverage)),
		zap.String("path", out))
	return merged, nil
}

// Read loads and validates one collection file.
func Read(path string) (domain.Collection, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- files written by the collect tool
	if err != nil {
		return domain.Collection{}, err
	}
	if err := Validate(data); err != nil {
		return domain.Collection{}, err
	}
	var c domain.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Collection{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return c, nil
}

func (s *Store) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
