package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestParse(t *testing.T) {
	root, err := Parse([]byte(`
context: web
entry:
  main:
    import: ./src/index.js
  admin:
    import: ./src/admin.js
output:
  path: public
  clean: true
  keep:
    - "*.txt"
optimization:
  tree_shaking: true
  side_effects: true
resolve:
  extensions: [".js", ".json"]
  alias:
    "@": src
incremental:
  rebuild_make: true
  rebuild_emit_asset: true
watch:
  paths: ["src"]
  debounce: 300ms
minify:
  passes: 2
  drop_console: true
  test:
    kind: glob
    glob: "*.js"
`))
	if err != nil {
		t.Fatal(err)
	}

	if root.Context != "web" {
		t.Errorf("expected context to be set, got %q", root.Context)
	}

	exp := map[string]*Entry{
		"main":  {Name: "main", Import: "./src/index.js"},
		"admin": {Name: "admin", Import: "./src/admin.js"},
	}
	if diff := cmp.Diff(exp, root.Entry, cmpopts.IgnoreUnexported(Entry{})); diff != "" {
		t.Errorf("unexpected entries (-want +got):\n%s", diff)
	}

	if root.Output.Path != "public" || !root.Output.Clean {
		t.Errorf("unexpected output options: %+v", root.Output)
	}
	if !root.Optimization.TreeShaking || !root.Optimization.SideEffects {
		t.Errorf("unexpected optimization options: %+v", root.Optimization)
	}
	if !root.IncrementalRebuildMakeEnabled() || !root.IncrementalRebuildEmitAssetEnabled() {
		t.Errorf("unexpected incremental options: %+v", root.Incremental)
	}
	if root.Resolve.Alias["@"] != "src" {
		t.Errorf("unexpected alias table: %v", root.Resolve.Alias)
	}
	if root.Watch.Debounce != Duration(300*time.Millisecond) {
		t.Errorf("unexpected debounce: %v", root.Watch.Debounce)
	}
	if root.Minify == nil || root.Minify.Passes != 2 || !root.Minify.DropConsole {
		t.Errorf("unexpected minify options: %+v", root.Minify)
	}
	if !root.Minify.Test.Matches("main.js") || root.Minify.Test.Matches("main.css") {
		t.Error("expected the minify test condition to be compiled")
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	root, err := Parse([]byte(`
entry:
  main:
    import: ./index.js
`))
	if err != nil {
		t.Fatal(err)
	}
	if root.Context != "." {
		t.Errorf("expected context default, got %q", root.Context)
	}
	if root.Output.Path != "dist" {
		t.Errorf("expected output path default, got %q", root.Output.Path)
	}
	if !root.Resolve.Extensions.Contains(".js") {
		t.Errorf("expected default extensions, got %v", root.Resolve.Extensions)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		note string
		yaml string
		want string
	}{
		{
			note: "unknown output field rejected by schema",
			yaml: "output:\n  bogus: 1\n",
			want: "bogus",
		},
		{
			note: "entry without import",
			yaml: "entry:\n  main: {}\n",
			want: "import is required",
		},
		{
			note: "invalid keep pattern",
			yaml: "output:\n  keep: [\"[\"]\n",
			want: "keep pattern",
		},
		{
			note: "unknown condition kind",
			yaml: "minify:\n  test:\n    kind: regexp\n",
			want: "unrecognized match condition kind",
		},
		{
			note: "non-duration debounce",
			yaml: "watch:\n  debounce: fast\n",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestParseNullMinifySection(t *testing.T) {
	// An empty minify section means "minify with defaults"; the section being
	// present at all is the signal the option-binding layer looks for.
	root, err := Parse([]byte("entry:\n  main:\n    import: ./index.js\nminify:\n"))
	if err != nil {
		t.Fatal(err)
	}
	if root.Minify != nil {
		t.Errorf("expected a nil minify struct for a null section, got %+v", root.Minify)
	}
}

func TestConditionsMatches(t *testing.T) {
	tests := []struct {
		note string
		cond *Conditions
		name string
		exp  bool
	}{
		{
			note: "string condition matches exactly",
			cond: &Conditions{Kind: ConditionString, String: "main.js"},
			name: "main.js",
			exp:  true,
		},
		{
			note: "string condition is not a substring match",
			cond: &Conditions{Kind: ConditionString, String: "main"},
			name: "main.js",
			exp:  false,
		},
		{
			note: "glob condition",
			cond: &Conditions{Kind: ConditionGlob, Glob: "*.js"},
			name: "vendor.js",
			exp:  true,
		},
		{
			note: "array condition matches any element",
			cond: &Conditions{Kind: ConditionArray, Array: []*Conditions{
				{Kind: ConditionString, String: "a.js"},
				{Kind: ConditionGlob, Glob: "b.*"},
			}},
			name: "b.css",
			exp:  true,
		},
		{
			note: "nil condition never matches",
			cond: nil,
			name: "main.js",
			exp:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			if act := tc.cond.Matches(tc.name); act != tc.exp {
				t.Errorf("expected %v, got %v", tc.exp, act)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	base := write("base.yaml", `
entry:
  main:
    import: ./index.js
output:
  path: dist
`)
	override := write("override.yaml", `
entry:
  admin:
    import: ./admin.js
output:
  clean: true
`)

	bs, err := Merge([]string{base, override}, true)
	if err != nil {
		t.Fatal(err)
	}
	root, err := Parse(bs)
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Entry) != 2 {
		t.Errorf("expected the entry maps to merge, got %v", root.Entry)
	}
	if root.Output.Path != "dist" || !root.Output.Clean {
		t.Errorf("expected the output sections to merge, got %+v", root.Output)
	}

	conflict := write("conflict.yaml", "output:\n  path: public\n")

	if _, err := Merge([]string{base, conflict}, true); err == nil {
		t.Error("expected a conflict error for diverging scalars")
	} else if !strings.Contains(err.Error(), "/output/path") {
		t.Errorf("expected the conflicting path in the error, got %v", err)
	}

	bs, err = Merge([]string{base, conflict}, false)
	if err != nil {
		t.Fatal(err)
	}
	root, err = Parse(bs)
	if err != nil {
		t.Fatal(err)
	}
	if root.Output.Path != "public" {
		t.Errorf("expected the later file to win without conflict checking, got %q", root.Output.Path)
	}
}

func TestRootEqual(t *testing.T) {
	parse := func(s string) *Root {
		t.Helper()
		root, err := Parse([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		return root
	}

	base := `
entry:
  main:
    import: ./index.js
output:
  keep: ["a.txt", "b.txt"]
watch:
  paths: ["src", "lib"]
`
	a := parse(base)

	if !a.Equal(a) {
		t.Error("expected a root to equal itself")
	}
	if !a.Equal(parse(base)) {
		t.Error("expected identical configs to be equal")
	}

	// keep and watch paths are sets; order does not count as a change.
	reordered := parse(`
entry:
  main:
    import: ./index.js
output:
  keep: ["b.txt", "a.txt"]
watch:
  paths: ["lib", "src"]
`)
	if !a.Equal(reordered) {
		t.Error("expected reordered set options to compare equal")
	}

	changed := parse(strings.Replace(base, "./index.js", "./other.js", 1))
	if a.Equal(changed) {
		t.Error("expected a changed entry import to compare unequal")
	}
}

func TestReflectSchema(t *testing.T) {
	bs, err := ReflectSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"definitions", "ConfigRoot", "tree_shaking"} {
		if !strings.Contains(string(bs), want) {
			t.Errorf("expected reflected schema to mention %q", want)
		}
	}
}
