// Package packmill embeds the bundler into other Go programs.
//
// The package wraps the internal compiler behind a small builder-style API.
// Configuration is the same YAML document the CLI consumes; it is validated
// against the embedded schema before any build work starts.
//
// # Basic Usage
//
// Run a single build from a config document:
//
//	import "github.com/packmill/packmill/pkg/packmill"
//
//	cfg := []byte(`
//	context: ./app
//	entry:
//	  main:
//	    import: ./src/index.js
//	output:
//	  path: dist
//	`)
//
//	runner, err := packmill.New().WithConfig(cfg).Prepare()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := runner.Build(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Watch Mode
//
// Watch blocks until the context is canceled, rebuilding on file changes:
//
//	err := runner.Watch(ctx)
//
// Diagnostics from the last build are available via Status after Build
// returns, including per-module resolution and parse failures that did not
// fail the build as a whole.
package packmill
