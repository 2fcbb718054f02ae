// Package diagnostics provides the value representation for build problems
// that should be reported without aborting the pipeline. Fatal conditions are
// ordinary Go errors; everything else becomes a Diagnostic appended to the
// current compilation.
package diagnostics

import "fmt"

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Diagnostic is a recoverable per-module problem recorded during a build.
type Diagnostic struct {
	Severity Severity
	Module   string // module identifier the diagnostic originates from, if any
	Message  string
}

func (d Diagnostic) String() string {
	if d.Module == "" {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Module, d.Message)
}

func Warning(module, f string, a ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Module: module, Message: fmt.Sprintf(f, a...)}
}

func Error(module, f string, a ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Module: module, Message: fmt.Sprintf(f, a...)}
}

// FromError converts a module-scoped error into an error diagnostic.
func FromError(module string, err error) Diagnostic {
	return Diagnostic{Severity: SeverityError, Module: module, Message: err.Error()}
}

// Batch is an append-only collection of diagnostics.
type Batch struct {
	items []Diagnostic
}

func (b *Batch) Push(ds ...Diagnostic) {
	b.items = append(b.items, ds...)
}

// Take returns the accumulated diagnostics and resets the batch.
func (b *Batch) Take() []Diagnostic {
	items := b.items
	b.items = nil
	return items
}

func (b *Batch) Items() []Diagnostic {
	return b.items
}

func (b *Batch) Len() int {
	return len(b.items)
}

// Errors returns only the error-severity diagnostics.
func (b *Batch) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range b.items {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}
