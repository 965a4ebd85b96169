package domain

import "encoding/json"

// CollectionType is the document type written by the coverage collector.
const CollectionType = "CodeCoverage"

// Collection is a raw coverage snapshot as produced by the collector.
// Entries are kept undecoded so hit maps of any shape survive a merge.
type Collection struct {
	Type     string            `json:"type"`
	Coverage []json.RawMessage `json:"coverage"`
}

// MergeCollections concatenates the coverage entries of every input in
// order. Entries are not de-duplicated by source.
func MergeCollections(collections []Collection) (Collection, error) {
	if len(collections) == 0 {
		return Collection{}, ErrEmptyMergeInput
	}
	total := 0
	for _, c := range collections {
		total += len(c.Coverage)
	}
	merged := Collection{
		Type:     CollectionType,
		Coverage: make([]json.RawMessage, 0, total),
	}
	for _, c := range collections {
		merged.Coverage = append(merged.Coverage, c.Coverage...)
	}
	return merged, nil
}
