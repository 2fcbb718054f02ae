package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"

	"github.com/packmill/packmill/internal/util"
)

// Internal configuration data structures for the packmill build core.

// Root is the top-level configuration structure consumed by the compiler.
// It is the typed form any external option-binding layer has to produce.
type Root struct {
	Context      string            `json:"context,omitempty"`
	Entry        map[string]*Entry `json:"entry,omitempty"`
	Output       Output            `json:"output,omitzero"`
	Optimization Optimization      `json:"optimization,omitzero"`
	Resolve      Resolve           `json:"resolve,omitzero"`
	Minify       *Minify           `json:"minify,omitempty"`
	Incremental  Incremental       `json:"incremental,omitzero"`
	Watch        *Watch            `json:"watch,omitempty"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for the Root
// struct. This lets entries be defined as a mapping keyed by entry name; the
// name is injected into each Entry so internal callers never deal with the
// map key and the value drifting apart.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal(r)
}

func (*Root) unmarshal(raw *Root) error {
	for name := range raw.Entry {
		raw.Entry[name] = cmp.Or(raw.Entry[name], &Entry{})
		raw.Entry[name].Name = name
		if raw.Entry[name].Import == "" {
			return fmt.Errorf("entry %q: import is required", name)
		}
	}
	return nil
}

// ApplyDefaults fills in the values the rest of the system relies on being
// present.
func (r *Root) ApplyDefaults() {
	r.Context = cmp.Or(r.Context, ".")
	r.Output.Path = cmp.Or(r.Output.Path, "dist")
	if len(r.Resolve.Extensions) == 0 {
		r.Resolve.Extensions = StringSet{".js", ".mjs", ".cjs", ".json"}
	}
}

// SortedEntries iterates entries in name order for deterministic builds.
func (r *Root) SortedEntries() iter.Seq2[int, *Entry] {
	return func(yield func(int, *Entry) bool) {
		names := slices.Sorted(maps.Keys(r.Entry))
		for i, name := range names {
			if !yield(i, r.Entry[name]) {
				return
			}
		}
	}
}

func (r *Root) Equal(other *Root) bool {
	return fastEqual(r, other, func(r, other *Root) bool {
		return r.Context == other.Context &&
			maps.EqualFunc(r.Entry, other.Entry, (*Entry).Equal) &&
			r.Output.Equal(&other.Output) &&
			r.Optimization == other.Optimization &&
			r.Resolve.Equal(&other.Resolve) &&
			r.Minify.Equal(other.Minify) &&
			r.Incremental == other.Incremental &&
			fastEqual(r.Watch, other.Watch, func(a, b *Watch) bool { return a.Equal(b) })
	})
}

// IncrementalRebuildMakeEnabled reports whether the make phase may reuse the
// previous module graph and only force-build an explicit dependency subset.
func (r *Root) IncrementalRebuildMakeEnabled() bool {
	return r.Incremental.RebuildMake
}

// IncrementalRebuildEmitAssetEnabled reports whether asset emission tracks
// content versions across builds to skip unchanged writes.
func (r *Root) IncrementalRebuildEmitAssetEnabled() bool {
	return r.Incremental.RebuildEmitAsset
}

// Entry defines one named entry point.
type Entry struct {
	Name   string `json:"-"`
	Import string `json:"import"`

	_ struct{} `additionalProperties:"false"`
}

func (e *Entry) Equal(other *Entry) bool {
	return fastEqual(e, other, func(e, other *Entry) bool {
		return e.Name == other.Name && e.Import == other.Import
	})
}

// Library type values with strict ES module semantics. Declaring one of
// these makes unused-export elimination safe even when tree shaking is not
// globally enabled.
const (
	LibraryTypeModule         = "module"
	LibraryTypeCommonJSStatic = "commonjs-static"
)

// Output configures where and how assets are written.
type Output struct {
	Path    string    `json:"path,omitempty"`
	Clean   bool      `json:"clean,omitempty"`
	NoEmit  bool      `json:"no_emit,omitempty"`
	Library *Library  `json:"library,omitempty"`
	Keep    StringSet `json:"keep,omitempty"` // glob patterns never pruned from the output dir

	_ struct{} `additionalProperties:"false"`
}

func (o *Output) UnmarshalYAML(bs []byte) error {
	type rawOutput Output
	var raw rawOutput
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}
	*o = Output(raw)
	return o.validate()
}

func (o *Output) UnmarshalJSON(bs []byte) error {
	type rawOutput Output
	var raw rawOutput
	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}
	*o = Output(raw)
	return o.validate()
}

func (o *Output) validate() error {
	for _, pattern := range o.Keep {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("failed to compile keep pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (o *Output) Equal(other *Output) bool {
	return fastEqual(o, other, func(o, other *Output) bool {
		return o.Path == other.Path &&
			o.Clean == other.Clean &&
			o.NoEmit == other.NoEmit &&
			o.Keep.SetEqual(other.Keep) &&
			fastEqual(o.Library, other.Library, func(a, b *Library) bool { return a.Types.Equal(b.Types) })
	})
}

// EnabledLibraryTypes returns the declared library types, if any.
func (o *Output) EnabledLibraryTypes() []string {
	if o.Library == nil {
		return nil
	}
	return o.Library.Types
}

type Library struct {
	Types StringSet `json:"types,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Optimization gates the analysis and tree-shaking behavior.
type Optimization struct {
	TreeShaking bool `json:"tree_shaking,omitempty"`
	SideEffects bool `json:"side_effects,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Incremental enables graph and emission reuse across rebuilds.
type Incremental struct {
	RebuildMake      bool `json:"rebuild_make,omitempty"`
	RebuildEmitAsset bool `json:"rebuild_emit_asset,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Resolve configures how module requests map to files. These options key the
// resolver factory cache: two equal Resolve values share one resolver.
type Resolve struct {
	Extensions StringSet         `json:"extensions,omitempty"`
	Alias      map[string]string `json:"alias,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (r *Resolve) Equal(other *Resolve) bool {
	return fastEqual(r, other, func(r, other *Resolve) bool {
		return r.Extensions.Equal(other.Extensions) && maps.Equal(r.Alias, other.Alias)
	})
}

// Key returns a stable string identifying these options, used to cache
// resolver instances.
func (r *Resolve) Key() string {
	bs, err := json.Marshal(r)
	if err != nil {
		// Resolve contains only marshalable fields.
		panic(err)
	}
	return string(bs)
}

// Watch configures the file watcher driving incremental rebuilds.
type Watch struct {
	Paths    StringSet `json:"paths,omitempty"`
	Debounce Duration  `json:"debounce,omitzero"`

	_ struct{} `additionalProperties:"false"`
}

func (w *Watch) Equal(other *Watch) bool {
	// Path order is irrelevant to the watcher.
	return w.Paths.SetEqual(other.Paths) && w.Debounce == other.Debounce
}

// Minify holds the minification options the option-binding layer produces.
// The concrete minifier is a plugin concern; the core only validates and
// carries these.
type Minify struct {
	Passes      int         `json:"passes,omitempty"`
	DropConsole bool        `json:"drop_console,omitempty"`
	PureFuncs   StringSet   `json:"pure_funcs,omitempty"`
	Test        *Conditions `json:"test,omitempty"`
	Include     *Conditions `json:"include,omitempty"`
	Exclude     *Conditions `json:"exclude,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

func (m *Minify) Equal(other *Minify) bool {
	return fastEqual(m, other, func(m, other *Minify) bool {
		return m.Passes == other.Passes &&
			m.DropConsole == other.DropConsole &&
			m.PureFuncs.Equal(other.PureFuncs) &&
			m.Test.equal(other.Test) &&
			m.Include.equal(other.Include) &&
			m.Exclude.equal(other.Exclude)
	})
}

// Condition kinds.
const (
	ConditionString = "string"
	ConditionGlob   = "glob"
	ConditionArray  = "array"
)

var errUnknownConditionKind = errors.New("unrecognized match condition kind")

// Conditions is a match condition against asset or module names: an exact
// string, a glob, or an array of further conditions (any-of).
type Conditions struct {
	Kind   string        `json:"kind"`
	String string        `json:"string,omitempty"`
	Glob   string        `json:"glob,omitempty"`
	Array  []*Conditions `json:"array,omitempty"`

	compiled glob.Glob
}

func (c *Conditions) UnmarshalYAML(bs []byte) error {
	type rawConditions Conditions
	var raw rawConditions
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode match condition: %w", err)
	}
	*c = Conditions(raw)
	return c.compile()
}

func (c *Conditions) UnmarshalJSON(bs []byte) error {
	type rawConditions Conditions
	var raw rawConditions
	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode match condition: %w", err)
	}
	*c = Conditions(raw)
	return c.compile()
}

// compile validates the condition eagerly: a malformed condition is a
// configuration error that fails the whole operation before any build work
// starts.
func (c *Conditions) compile() error {
	switch c.Kind {
	case ConditionString:
		return nil
	case ConditionGlob:
		g, err := glob.Compile(c.Glob)
		if err != nil {
			return fmt.Errorf("failed to compile glob condition %q: %w", c.Glob, err)
		}
		c.compiled = g
		return nil
	case ConditionArray:
		return nil // elements validate themselves on unmarshal
	default:
		return fmt.Errorf("%w %q", errUnknownConditionKind, c.Kind)
	}
}

// Matches reports whether the condition matches the given name.
func (c *Conditions) Matches(name string) bool {
	if c == nil {
		return false
	}
	switch c.Kind {
	case ConditionString:
		return c.String == name
	case ConditionGlob:
		if c.compiled == nil {
			c.compiled = glob.MustCompile(c.Glob)
		}
		return c.compiled.Match(name)
	case ConditionArray:
		return slices.ContainsFunc(c.Array, func(e *Conditions) bool { return e.Matches(name) })
	}
	return false
}

func (c *Conditions) equal(other *Conditions) bool {
	return fastEqual(c, other, func(c, other *Conditions) bool {
		return c.Kind == other.Kind &&
			c.String == other.String &&
			c.Glob == other.Glob &&
			slices.EqualFunc(c.Array, other.Array, func(a, b *Conditions) bool { return a.equal(b) })
	})
}

// StringSet is an ordered list of strings with set-style comparison.
type StringSet []string

func (s StringSet) Equal(other StringSet) bool {
	return slices.Equal(s, other)
}

// SetEqual compares ignoring order, for options where order carries no
// meaning.
func (s StringSet) SetEqual(other StringSet) bool {
	return util.SetEqual(s, other, func(v string) string { return v }, func(a, b string) bool { return a == b })
}

func (s StringSet) Contains(v string) bool {
	return slices.Contains(s, v)
}

// Instead of marshaling and unmarshaling as int64 it uses strings, like "5m" or "0.5s".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	val, err := time.ParseDuration(str)
	*d = Duration(val)
	return err
}

func (d *Duration) UnmarshalYAML(bs []byte) error {
	var s string
	if err := yaml.Unmarshal(bs, &s); err != nil {
		return err
	}
	val, err := time.ParseDuration(s)
	*d = Duration(val)
	return err
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func fastEqual[V any](a, b *V, slowEqual func(a, b *V) bool) bool {
	return util.FastEqual(a, b, slowEqual)
}
