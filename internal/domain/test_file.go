package domain

// TestKind classifies a resolved test file.
type TestKind string

const (
	TestKindUnit       TestKind = "unit"
	TestKindFunctional TestKind = "functional"
)

// TestFile is a resolved test entry point.
type TestFile struct {
	Path string
	Kind TestKind
}

// TestSet holds the resolved unit and functional tests of a run.
type TestSet struct {
	Unit       []TestFile
	Functional []TestFile
}

// HasFunctional reports whether any functional tests were resolved.
func (s TestSet) HasFunctional() bool {
	return len(s.Functional) > 0
}

// Empty reports whether nothing was resolved at all.
func (s TestSet) Empty() bool {
	return len(s.Unit) == 0 && len(s.Functional) == 0
}

// Paths returns the file paths of tests in input order.
func Paths(tests []TestFile) []string {
	paths := make([]string, 0, len(tests))
	for _, t := range tests {
		paths = append(paths, t.Path)
	}
	return paths
}
