package runners

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	testLinkPattern = regexp.MustCompile(`<link\s+rel=["']x-dart-test["']\s+href=["'][^"']*["']\s*/?>`)
	testJSPattern   = regexp.MustCompile(`\s*<script\s+src=["'][^"']*packages/test/dart\.js["']\s*>\s*</script>`)
)

const harnessTemplate = `<!DOCTYPE html>
<html>
  <head>
    <title>%[1]s</title>
    %[2]s
  </head>
  <body></body>
</html>
`

// htmlHarnessPath is where a hand-written harness for test would live.
func htmlHarnessPath(test string) string {
	return strings.TrimSuffix(test, filepath.Ext(test)) + ".html"
}

// coverageHarnessPath is the temporary harness dcov generates.
func coverageHarnessPath(test string) string {
	return strings.TrimSuffix(test, filepath.Ext(test)) + ".coverage.html"
}

func scriptTag(test string) string {
	return fmt.Sprintf(`<script type="application/dart" src="%s"></script>`, filepath.Base(test))
}

// writeHarness writes a page loading test as a Dart script. An existing
// harness is adapted by swapping its test link for the script tag;
// otherwise a minimal page is generated.
func writeHarness(test string) (string, error) {
	var content string
	existing, err := os.ReadFile(htmlHarnessPath(test)) // #nosec G304 -- sibling of a resolved test file
	switch {
	case err == nil:
		content = adaptHarness(string(existing), test)
	case os.IsNotExist(err):
		content = fmt.Sprintf(harnessTemplate, filepath.Base(test), scriptTag(test))
	default:
		return "", fmt.Errorf("read harness for %s: %w", test, err)
	}
	path := coverageHarnessPath(test)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("write harness for %s: %w", test, err)
	}
	return path, nil
}

func adaptHarness(html, test string) string {
	html = testJSPattern.ReplaceAllString(html, "")
	if testLinkPattern.MatchString(html) {
		return testLinkPattern.ReplaceAllLiteralString(html, scriptTag(test))
	}
	if strings.Contains(html, `type="application/dart"`) {
		return html
	}
	if strings.Contains(html, "</head>") {
		return strings.Replace(html, "</head>", "  "+scriptTag(test)+"\n  </head>", 1)
	}
	return html + "\n" + scriptTag(test) + "\n"
}
