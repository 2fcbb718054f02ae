package pipeline

import (
	"context"

	"github.com/packmill/packmill/internal/graph"
)

// EntryPlugin seeds the make phase with the configured entries. Each entry
// gets its dependency record allocated before resolution starts, so the
// id stays a stable handle across rebuilds of the same compilation.
// Entry imports resolve from the root of the source filesystem, which the
// compiler already anchors at the configured context.
type EntryPlugin struct{}

func NewEntryPlugin() *EntryPlugin {
	return &EntryPlugin{}
}

func (p *EntryPlugin) Name() string {
	return "entry"
}

func (p *EntryPlugin) Make(ctx context.Context, c *Compilation, param *MakeParam) error {
	if !param.Fresh() {
		// The compilation reuses an earlier graph; its entries are already
		// registered and the forced dependencies drive this pass.
		return nil
	}
	for _, entry := range c.Options.SortedEntries() {
		dep := graph.NewDependency(entry.Import, graph.KindEntry, ".")
		dep.Symbols = []string{"*"}
		c.Graph.AddDependency(dep)
		c.AddEntry(entry.Name, dep.ID(), entry)
	}
	return nil
}
