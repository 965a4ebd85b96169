package lcov

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FormatCoverageOutput(t *testing.T) {
	// format_coverage -l emits one record per library with DA lines only.
	content := `SF:/project/lib/cart.dart
DA:3,1
DA:4,1
DA:7,0
end_of_record
SF:/project/lib/src/price.dart
DA:1,12
DA:2,0
end_of_record
`
	stats, err := Parse(createTempFile(t, content))

	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 2, stats["/project/lib/cart.dart"].Hit)
	assert.Equal(t, 3, stats["/project/lib/cart.dart"].Found)
	assert.Equal(t, 1, stats["/project/lib/src/price.dart"].Hit)
	assert.Equal(t, 2, stats["/project/lib/src/price.dart"].Found)
}

func TestParse_SummaryLinesWin(t *testing.T) {
	content := `TN:
SF:lib/a.dart
DA:1,1
LF:4
LH:3
end_of_record`

	stats, err := Parse(createTempFile(t, content))

	require.NoError(t, err)
	assert.Equal(t, 3, stats["lib/a.dart"].Hit)
	assert.Equal(t, 4, stats["lib/a.dart"].Found)
}

func TestParse_RepeatedSourceIsSummed(t *testing.T) {
	content := `SF:lib/a.dart
DA:1,1
DA:2,0
end_of_record
SF:lib/a.dart
DA:5,3
end_of_record`

	stats, err := Parse(createTempFile(t, content))

	require.NoError(t, err)
	assert.Equal(t, 2, stats["lib/a.dart"].Hit)
	assert.Equal(t, 3, stats["lib/a.dart"].Found)
}

func TestParse_NoEndOfRecord(t *testing.T) {
	stats, err := Parse(createTempFile(t, "SF:lib/a.dart\nDA:1,1\nDA:2,1"))

	require.NoError(t, err)
	assert.Equal(t, 2, stats["lib/a.dart"].Hit)
}

func TestParse_IgnoresFunctionAndBranchLines(t *testing.T) {
	content := `SF:lib/a.dart
FN:1,main
FNDA:1,main
BRDA:5,0,0,1
BRF:2
DA:1,1
DA:2,0
end_of_record`

	stats, err := Parse(createTempFile(t, content))

	require.NoError(t, err)
	assert.Equal(t, 1, stats["lib/a.dart"].Hit)
	assert.Equal(t, 2, stats["lib/a.dart"].Found)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("/nonexistent/coverage.lcov")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open lcov file")

	_, err = Parse("")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	content := `SF:lib/b.dart
DA:1,1
DA:2,0
end_of_record
SF:lib/a.dart
DA:1,1
DA:2,1
end_of_record`

	summary, err := Summarize(createTempFile(t, content))

	require.NoError(t, err)
	require.Len(t, summary.Files, 2)
	assert.Equal(t, "lib/a.dart", summary.Files[0].File)
	assert.Equal(t, 3, summary.Hit)
	assert.Equal(t, 4, summary.Found)
	assert.Equal(t, 75.0, summary.Percent())
}

func TestSummarize_Empty(t *testing.T) {
	summary, err := Summarize(createTempFile(t, ""))

	require.NoError(t, err)
	assert.Empty(t, summary.Files)
	assert.Equal(t, 0.0, summary.Percent())
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coverage.lcov")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
