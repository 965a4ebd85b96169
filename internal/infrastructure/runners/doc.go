// Package runners runs Dart tests under an instrumented VM and reports the
// VM service ports coverage can be collected from.
//
// Supported test kinds:
//   - VM unit tests: `dart --observe=<port> <test>`
//   - Browser unit tests: `content_shell --dump-render-tree <harness>`
//   - Functional tests: `dart <test>` inside the served application, with
//     coverage taken from the VM service ports its helpers announce
//
// Runners execute one test at a time. A UnitRunner hands back a *Run that
// owns the test process; callers must Close it once coverage is collected.
//
// Usage:
//
//	runner := runners.NewUnitRunner(supervisor, tools, projectRoot)
//	run, err := runner.Run(ctx, test)
//	if err != nil {
//	    return err
//	}
//	defer run.Close()
//	collect(run.Port)
package runners
