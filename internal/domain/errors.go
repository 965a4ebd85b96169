package domain

import "errors"

// Run errors. ErrTestSuiteFailed and ErrOutsideFunctionalRoot only ever
// affect the single test they belong to; the rest fail the whole run.
var (
	ErrTestSuiteFailed       = errors.New("test suite failed")
	ErrEmptyMergeInput       = errors.New("no coverage collections to merge")
	ErrFormattingFailed      = errors.New("coverage formatting failed")
	ErrMissingRenderer       = errors.New("html renderer not installed")
	ErrPortBound             = errors.New("auxiliary service could not bind its port")
	ErrOutsideFunctionalRoot = errors.New("functional test is outside the functional root")
)

// IsSkippable reports whether err only disqualifies a single test.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrTestSuiteFailed) || errors.Is(err, ErrOutsideFunctionalRoot)
}
