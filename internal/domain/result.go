package domain

import (
	"math"
	"sort"
)

// SkippedTest records a test that produced no coverage and why.
type SkippedTest struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// FileCoverage is the line coverage of one source file in the LCOV report.
type FileCoverage struct {
	File  string `json:"file"`
	Hit   int    `json:"hit"`
	Found int    `json:"found"`
}

// Percent returns the hit ratio as a percentage rounded to one decimal.
func (f FileCoverage) Percent() float64 {
	return percent(f.Hit, f.Found)
}

// CoverageSummary totals the files of an LCOV report.
type CoverageSummary struct {
	Files []FileCoverage `json:"files"`
	Hit   int            `json:"hit"`
	Found int            `json:"found"`
}

// NewCoverageSummary builds a summary sorted by file name.
func NewCoverageSummary(stats map[string]FileCoverage) CoverageSummary {
	summary := CoverageSummary{Files: make([]FileCoverage, 0, len(stats))}
	for name, stat := range stats {
		stat.File = name
		summary.Files = append(summary.Files, stat)
		summary.Hit += stat.Hit
		summary.Found += stat.Found
	}
	sort.Slice(summary.Files, func(i, j int) bool {
		return summary.Files[i].File < summary.Files[j].File
	})
	return summary
}

// Percent returns the overall line coverage percentage.
func (s CoverageSummary) Percent() float64 {
	return percent(s.Hit, s.Found)
}

// Result is the outcome of one coverage run. Artifact paths are empty when
// the run failed before producing them.
type Result struct {
	Successful      bool             `json:"successful"`
	UnitTests       []string         `json:"unitTests"`
	FunctionalTests []string         `json:"functionalTests"`
	Collected       []string         `json:"collected"`
	Skipped         []SkippedTest    `json:"skipped,omitempty"`
	Collection      string           `json:"collection,omitempty"`
	LCOV            string           `json:"lcov,omitempty"`
	ReportDir       string           `json:"reportDir,omitempty"`
	ReportIndex     string           `json:"reportIndex,omitempty"`
	Summary         *CoverageSummary `json:"summary,omitempty"`
	Error           string           `json:"error,omitempty"`
}

func percent(hit, found int) float64 {
	if found == 0 {
		return 0
	}
	return math.Round(float64(hit)/float64(found)*1000) / 10
}
