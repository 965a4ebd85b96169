package signals

import "regexp"

var (
	portPattern         = regexp.MustCompile(`Observatory listening on https?://[^\s/]+:(\d+)`)
	serverFailedPattern = regexp.MustCompile(`Could not start Observatory HTTP server`)
	someFailedPattern   = regexp.MustCompile(`Some tests failed`)
	allPassedPattern    = regexp.MustCompile(`All tests passed`)
	allNPassedPattern   = regexp.MustCompile(`All \d+ tests passed`)
	suiteSuccessPattern = regexp.MustCompile(`unittest-suite-success`)
	suiteFailurePattern = regexp.MustCompile(`unittest-suite-failure`)

	appReadyPattern    = regexp.MustCompile(`Serving .* on https?://`)
	appFailedPattern   = regexp.MustCompile(`(?i)address already in use|could not bind|failed to bind|failed to create server socket`)
	driverReadyPattern = regexp.MustCompile(`Selenium Server is up and running`)
	driverFailPattern  = regexp.MustCompile(`Port \d+ is busy|Failed to start`)
)

var portOnly = NewClassifier(Rule{portPattern, Port})

// VMTest classifies stdout of a test run directly on the instrumented VM.
func VMTest() *Classifier {
	return NewClassifier(
		Rule{serverFailedPattern, ServerFailed},
		Rule{someFailedPattern, Failed},
		Rule{allPassedPattern, Passed},
		Rule{allNPassedPattern, Passed},
		Rule{portPattern, Port},
	)
}

// BrowserTest classifies both streams of a browser test runner.
func BrowserTest() *Classifier {
	return NewClassifier(
		Rule{suiteFailurePattern, Failed},
		Rule{someFailedPattern, Failed},
		Rule{suiteSuccessPattern, Passed},
		Rule{allPassedPattern, Passed},
		Rule{portPattern, Port},
	)
}

// FunctionalTest classifies a functional test script. Only the pluralized
// pass marker counts as success.
func FunctionalTest() *Classifier {
	return NewClassifier(
		Rule{serverFailedPattern, ServerFailed},
		Rule{someFailedPattern, Failed},
		Rule{allNPassedPattern, Passed},
		Rule{portPattern, Port},
	)
}

// AppServer classifies the application server's output.
func AppServer() *Classifier {
	return NewClassifier(
		Rule{appReadyPattern, Ready},
		Rule{appFailedPattern, BindFailed},
	)
}

// DriverServer classifies the browser automation server's output.
func DriverServer() *Classifier {
	return NewClassifier(
		Rule{driverReadyPattern, Ready},
		Rule{driverFailPattern, BindFailed},
	)
}
