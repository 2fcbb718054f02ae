package resolve

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/util"
)

func testFactory(t *testing.T, opts config.Resolve, mounts map[string]fs.FS) *Factory {
	t.Helper()
	fsys := util.MapFS(map[string]string{
		"src/index.js":      "import './lib';",
		"src/lib/index.js":  "export const lib = true;",
		"src/util.mjs":      "export const util = 1;",
		"src/data.json":     "{}",
		"vendor/dep/dep.js": "export default 1;",
	})
	return NewFactory(opts, fsys, mounts)
}

func defaultOpts() config.Resolve {
	return config.Resolve{Extensions: config.StringSet{".js", ".mjs", ".cjs", ".json"}}
}

func TestResolverResolve(t *testing.T) {
	tests := []struct {
		note    string
		dir     string
		request string
		opts    config.Resolve
		exp     string
		expErr  bool
	}{
		{
			note:    "exact file",
			dir:     ".",
			request: "./src/index.js",
			exp:     "src/index.js",
		},
		{
			note:    "extension probing",
			dir:     "src",
			request: "./util",
			exp:     "src/util.mjs",
		},
		{
			note:    "json extension",
			dir:     "src",
			request: "./data",
			exp:     "src/data.json",
		},
		{
			note:    "directory index",
			dir:     "src",
			request: "./lib",
			exp:     "src/lib/index.js",
		},
		{
			note:    "parent relative",
			dir:     "src/lib",
			request: "../util.mjs",
			exp:     "src/util.mjs",
		},
		{
			note:    "root relative without prefix",
			dir:     "src/lib",
			request: "src/index.js",
			exp:     "src/index.js",
		},
		{
			note:    "alias rewrite into base filesystem",
			dir:     "src",
			request: "deps/dep/dep.js",
			opts:    config.Resolve{Extensions: config.StringSet{".js"}, Alias: map[string]string{"deps": "vendor"}},
			exp:     "vendor/dep/dep.js",
		},
		{
			note:    "missing file",
			dir:     ".",
			request: "./nope",
			expErr:  true,
		},
		{
			note:    "empty request",
			dir:     ".",
			request: "",
			expErr:  true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			opts := tc.opts
			if opts.Extensions == nil && opts.Alias == nil {
				opts = defaultOpts()
			}
			r := testFactory(t, opts, nil).Default()
			res, err := r.Resolve(tc.dir, tc.request)
			if tc.expErr {
				if err == nil {
					t.Fatalf("expected error, got %v", res)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if res.Path != tc.exp {
				t.Errorf("expected path %q, got %q", tc.exp, res.Path)
			}
		})
	}
}

func TestResolverQuery(t *testing.T) {
	r := testFactory(t, defaultOpts(), nil).Default()
	res, err := r.Resolve(".", "./src/index.js?raw")
	if err != nil {
		t.Fatal(err)
	}
	if exp, act := "src/index.js", res.Path; exp != act {
		t.Errorf("expected path %q, got %q", exp, act)
	}
	if exp, act := "?raw", res.Query; exp != act {
		t.Errorf("expected query %q, got %q", exp, act)
	}
	if exp, act := "src/index.js?raw", res.Identifier(); exp != act {
		t.Errorf("expected identifier %q, got %q", exp, act)
	}
}

func TestResolverMounts(t *testing.T) {
	mounts := map[string]fs.FS{
		"virtual": util.MapFS(map[string]string{"gen.js": "export const gen = 1;"}),
	}
	opts := config.Resolve{
		Extensions: config.StringSet{".js"},
		Alias:      map[string]string{"virtual": "virtual"},
	}
	r := testFactory(t, opts, mounts).Default()

	res, err := r.Resolve("src", "virtual/gen")
	if err != nil {
		t.Fatal(err)
	}
	if exp, act := "virtual/gen.js", res.Path; exp != act {
		t.Fatalf("expected path %q, got %q", exp, act)
	}

	bs, err := r.Read(res)
	if err != nil {
		t.Fatal(err)
	}
	if exp, act := "export const gen = 1;", string(bs); exp != act {
		t.Errorf("expected content %q, got %q", exp, act)
	}
}

func TestResolverNotFoundError(t *testing.T) {
	r := testFactory(t, defaultOpts(), nil).Default()
	_, err := r.Resolve(".", "./missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFactoryCaching(t *testing.T) {
	f := testFactory(t, defaultOpts(), nil)

	a := f.Get(config.Resolve{Extensions: config.StringSet{".js"}})
	b := f.Get(config.Resolve{Extensions: config.StringSet{".js"}})
	if a != b {
		t.Error("expected equal options to share one resolver")
	}

	c := f.Get(config.Resolve{Extensions: config.StringSet{".mjs"}})
	if a == c {
		t.Error("expected different options to get a fresh resolver")
	}

	if exp, act := 2, f.NumEntries(); exp != act {
		t.Fatalf("expected %d cached resolvers, got %d", exp, act)
	}

	f.ClearEntries()
	if exp, act := 0, f.NumEntries(); exp != act {
		t.Fatalf("expected %d cached resolvers after clear, got %d", exp, act)
	}
}
