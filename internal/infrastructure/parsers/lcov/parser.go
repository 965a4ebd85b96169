// Package lcov reads the LCOV report produced by the coverage formatter and
// summarizes its line coverage.
package lcov

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/dcov/internal/domain"
	"github.com/felixgeelhaar/dcov/internal/pathutil"
)

// Parse reads an LCOV file and returns per-file line stats. Records for the
// same source file are summed.
func Parse(path string) (map[string]domain.FileCoverage, error) {
	cleanPath, err := pathutil.ValidatePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	file, err := os.Open(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("open lcov file: %w", err)
	}
	defer file.Close()
	return parse(file)
}

// Summarize parses path into a CoverageSummary.
func Summarize(path string) (domain.CoverageSummary, error) {
	stats, err := Parse(path)
	if err != nil {
		return domain.CoverageSummary{}, err
	}
	return domain.NewCoverageSummary(stats), nil
}

func parse(r io.Reader) (map[string]domain.FileCoverage, error) {
	stats := make(map[string]domain.FileCoverage)
	scanner := bufio.NewScanner(r)

	var current string
	var hit, found, lh, lf int
	flush := func() {
		if current == "" {
			return
		}
		// LF/LH win when present; otherwise the DA lines are authoritative.
		if lf > found {
			found = lf
		}
		if lh > hit {
			hit = lh
		}
		s := stats[current]
		s.Hit += hit
		s.Found += found
		stats[current] = s
		current = ""
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "SF:"):
			flush()
			current = strings.TrimPrefix(line, "SF:")
			hit, found, lh, lf = 0, 0, 0, 0
		case strings.HasPrefix(line, "DA:"):
			// DA:<line>,<count>[,<checksum>]
			parts := strings.Split(strings.TrimPrefix(line, "DA:"), ",")
			if len(parts) < 2 {
				continue
			}
			found++
			if count, _ := strconv.Atoi(parts[1]); count > 0 {
				hit++
			}
		case strings.HasPrefix(line, "LF:"):
			lf, _ = strconv.Atoi(strings.TrimPrefix(line, "LF:"))
		case strings.HasPrefix(line, "LH:"):
			lh, _ = strconv.Atoi(strings.TrimPrefix(line, "LH:"))
		case line == "end_of_record":
			flush()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lcov file: %w", err)
	}
	flush()
	return stats, nil
}

// Summarizer adapts Summarize to the application's summarizer interface.
type Summarizer struct{}

func (Summarizer) Summarize(path string) (domain.CoverageSummary, error) {
	return Summarize(path)
}
