package pipeline

import (
	"regexp"
	"strings"
)

// The make phase needs just enough of a parse to discover outgoing
// dependencies and to feed the export-usage analysis: which requests a
// module imports (and which symbols), which symbols it exports, and whether
// anything in it defeats static analysis. Full parsing and code generation
// are transform-plugin territory.

type parsedImport struct {
	request string
	symbols []string // imported export names; "*" means all
}

type parsedModule struct {
	imports        []parsedImport
	exports        []string
	sideEffectFree bool
	bailout        bool
}

var (
	importFromRe = regexp.MustCompile(`^\s*import\s+(.+?)\s+from\s+['"]([^'"]+)['"]`)
	importBareRe = regexp.MustCompile(`^\s*import\s+['"]([^'"]+)['"]`)
	exportDeclRe = regexp.MustCompile(`^\s*export\s+(?:(?:async\s+)?function\s+([A-Za-z_$][\w$]*)|class\s+([A-Za-z_$][\w$]*)|(?:const|let|var)\s+([A-Za-z_$][\w$]*))`)
	exportListRe = regexp.MustCompile(`^\s*export\s*\{([^}]*)\}`)
	exportDfltRe = regexp.MustCompile(`^\s*export\s+default\b`)
	requireRe    = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	dynRequireRe = regexp.MustCompile(`\brequire\(\s*[^'"]`)

	// Lines that are pure declarations; a module made only of these has no
	// side effects when its exports go unused.
	declLineRe = regexp.MustCompile(`^\s*(?:import\b|export\b|function\b|async\s+function\b|class\b|const\b|let\b|var\b|//|/\*|\*|[}\])];?\s*$|$)`)
)

func parseSource(source []byte) parsedModule {
	p := parsedModule{sideEffectFree: true}

	for line := range strings.Lines(string(source)) {
		switch {
		case dynRequireRe.MatchString(line) || strings.Contains(line, "eval("):
			p.bailout = true
			p.sideEffectFree = false
			continue
		}

		if m := importFromRe.FindStringSubmatch(line); m != nil {
			p.imports = append(p.imports, parsedImport{request: m[2], symbols: importClauseSymbols(m[1])})
			continue
		}
		if m := importBareRe.FindStringSubmatch(line); m != nil {
			// Bare imports exist for their side effects only.
			p.imports = append(p.imports, parsedImport{request: m[1]})
			continue
		}
		for _, m := range requireRe.FindAllStringSubmatch(line, -1) {
			p.imports = append(p.imports, parsedImport{request: m[1], symbols: []string{"*"}})
		}

		if m := exportDeclRe.FindStringSubmatch(line); m != nil {
			for _, name := range m[1:] {
				if name != "" {
					p.exports = append(p.exports, name)
				}
			}
		} else if m := exportListRe.FindStringSubmatch(line); m != nil {
			for _, item := range strings.Split(m[1], ",") {
				name := strings.TrimSpace(item)
				if i := strings.Index(name, " as "); i >= 0 {
					name = strings.TrimSpace(name[i+4:]) // exported under the alias
				}
				if name != "" {
					p.exports = append(p.exports, name)
				}
			}
		} else if exportDfltRe.MatchString(line) {
			p.exports = append(p.exports, "default")
		}

		if p.sideEffectFree && !declLineRe.MatchString(line) {
			p.sideEffectFree = false
		}
	}

	return p
}

// importClauseSymbols maps an import clause to the export names it uses.
func importClauseSymbols(clause string) []string {
	var symbols []string
	clause = strings.TrimSpace(clause)

	if i := strings.IndexByte(clause, '{'); i >= 0 {
		j := strings.IndexByte(clause, '}')
		if j < 0 {
			j = len(clause)
		}
		for _, item := range strings.Split(clause[i+1:j], ",") {
			name := strings.TrimSpace(item)
			if k := strings.Index(name, " as "); k >= 0 {
				name = strings.TrimSpace(name[:k]) // the source export name
			}
			if name != "" {
				symbols = append(symbols, name)
			}
		}
		clause = strings.TrimSpace(clause[:i])
		clause = strings.TrimSuffix(clause, ",")
	}

	if strings.Contains(clause, "*") {
		symbols = append(symbols, "*")
	} else if clause = strings.TrimSpace(strings.TrimSuffix(clause, ",")); clause != "" {
		symbols = append(symbols, "default")
	}

	return symbols
}
