package pipeline

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/packmill/packmill/internal/config"
)

// MinifyPlugin compacts sealed assets before they are emitted. Which assets
// it touches is driven by the configured match conditions: test, include and
// exclude all have to agree. The transform is conservative: comments and
// blank space go, and optionally console calls and known pure calls whose
// results are discarded.
type MinifyPlugin struct {
	options *config.Minify
}

func NewMinifyPlugin(options *config.Minify) *MinifyPlugin {
	return &MinifyPlugin{options: options}
}

func (p *MinifyPlugin) Name() string {
	return "minify"
}

func (p *MinifyPlugin) Emit(ctx context.Context, c *Compilation) error {
	if p.options == nil {
		return nil
	}
	for _, filename := range c.AssetFilenames() {
		if !p.matches(filename) {
			continue
		}
		asset := c.GetAsset(filename)
		source := asset.GetSource()
		out := p.minify(source)
		if !bytes.Equal(out, source) {
			c.EmitAsset(filename, NewAsset(out))
		}
	}
	return nil
}

func (p *MinifyPlugin) matches(name string) bool {
	if p.options.Test != nil && !p.options.Test.Matches(name) {
		return false
	}
	if p.options.Include != nil && !p.options.Include.Matches(name) {
		return false
	}
	if p.options.Exclude.Matches(name) {
		return false
	}
	return true
}

var blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)

func (p *MinifyPlugin) minify(source []byte) []byte {
	passes := max(p.options.Passes, 1)
	out := source
	for range passes {
		out = p.pass(out)
	}
	return out
}

func (p *MinifyPlugin) pass(source []byte) []byte {
	stripped := blockCommentRe.ReplaceAll(source, nil)

	var buf bytes.Buffer
	for line := range strings.Lines(string(stripped)) {
		line = stripLineComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p.options.DropConsole && isCall(line, "console.") {
			continue
		}
		if p.droppedPureCall(line) {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// droppedPureCall reports whether line is a bare call to a configured pure
// function, meaning its result is discarded and the call can go.
func (p *MinifyPlugin) droppedPureCall(line string) bool {
	for _, fn := range p.options.PureFuncs {
		if isCall(line, fn) {
			return true
		}
	}
	return false
}

func isCall(line, prefix string) bool {
	if !strings.HasPrefix(line, prefix) {
		return false
	}
	rest := line[len(prefix):]
	i := strings.IndexByte(rest, '(')
	if i < 0 {
		return false
	}
	for _, r := range rest[:i] {
		if !(r == '.' || r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return strings.HasSuffix(line, ")") || strings.HasSuffix(line, ");")
}

// stripLineComment drops a trailing // comment, respecting string literals.
func stripLineComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}
