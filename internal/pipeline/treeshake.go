package pipeline

import (
	"sort"

	"github.com/packmill/packmill/internal/diagnostics"
	"github.com/packmill/packmill/internal/graph"
)

// AnalyzeResult is what export-usage analysis learns about a finished graph.
// Which result fields actually change the build is the compiler's decision:
// analysis itself only observes.
type AnalyzeResult struct {
	// UsedSymbolRefs maps a module identifier to the export names something
	// imports from it. The name "*" stands for every export.
	UsedSymbolRefs map[string]map[string]struct{}

	// BailoutModules contains modules whose dynamic constructs defeated the
	// analysis. Their imports count as using everything.
	BailoutModules map[string]struct{}

	SideEffectFreeModules map[string]struct{}

	// IncludeModuleIDs is the set of modules a sealed chunk may contain:
	// everything except side-effect-free modules none of whose exports are
	// used.
	IncludeModuleIDs map[string]struct{}

	// ModuleItemMap lists, per included module, the export names the
	// analysis retained, sorted. A module used through "*", an entry, or a
	// bailout keeps every export it declares.
	ModuleItemMap map[string][]string

	Diagnostics []diagnostics.Diagnostic
}

// Analyze walks the graph from the entries, marking which exports each
// module has used by whom. Entry modules count as fully used; so does any
// module imported by a bailout module or through a namespace import.
func Analyze(g *graph.ModuleGraph, entries map[string]EntryItem) AnalyzeResult {
	result := AnalyzeResult{
		UsedSymbolRefs:        map[string]map[string]struct{}{},
		BailoutModules:        map[string]struct{}{},
		SideEffectFreeModules: map[string]struct{}{},
		IncludeModuleIDs:      map[string]struct{}{},
		ModuleItemMap:         map[string][]string{},
	}

	entryModules := map[string]struct{}{}
	var queue []string
	for _, name := range sortedEntryNames(entries) {
		mod, ok := g.ModuleByDependency(entries[name].DependencyID)
		if !ok {
			continue
		}
		entryModules[mod.Identifier] = struct{}{}
		result.markUsed(mod.Identifier, "*")
		queue = append(queue, mod.Identifier)
	}

	visited := map[string]struct{}{}
	for len(queue) > 0 {
		ident := queue[0]
		queue = queue[1:]
		if _, ok := visited[ident]; ok {
			continue
		}
		visited[ident] = struct{}{}

		mod, ok := g.Module(ident)
		if !ok {
			continue
		}
		if mod.Bailout {
			result.BailoutModules[ident] = struct{}{}
			result.Diagnostics = append(result.Diagnostics,
				diagnostics.Warning(ident, "dynamic import or eval defeats export analysis"))
		}
		if mod.SideEffectFree {
			result.SideEffectFreeModules[ident] = struct{}{}
		}

		for _, id := range mod.Dependencies {
			dep, ok := g.Dependency(id)
			if !ok {
				continue
			}
			target, ok := g.ModuleByDependency(id)
			if !ok {
				continue
			}
			if mod.Bailout {
				result.markUsed(target.Identifier, "*")
			} else {
				for _, symbol := range dep.Symbols {
					if symbol != "*" && !exports(target, symbol) {
						result.Diagnostics = append(result.Diagnostics,
							diagnostics.Warning(mod.Identifier, "%q has no export named %q", dep.Request, symbol))
					}
					result.markUsed(target.Identifier, symbol)
				}
			}
			queue = append(queue, target.Identifier)
		}
	}

	for ident := range visited {
		mod, ok := g.Module(ident)
		if !ok {
			continue
		}
		_, isEntry := entryModules[ident]
		refs := result.UsedSymbolRefs[ident]
		if isEntry || len(refs) > 0 || mod.Bailout || !mod.SideEffectFree {
			result.IncludeModuleIDs[ident] = struct{}{}
			result.ModuleItemMap[ident] = retainedItems(mod, refs, isEntry)
		}
	}

	return result
}

func (r *AnalyzeResult) markUsed(identifier, symbol string) {
	refs, ok := r.UsedSymbolRefs[identifier]
	if !ok {
		refs = map[string]struct{}{}
		r.UsedSymbolRefs[identifier] = refs
	}
	refs[symbol] = struct{}{}
}

func retainedItems(mod *graph.Module, refs map[string]struct{}, isEntry bool) []string {
	_, star := refs["*"]
	if isEntry || star || mod.Bailout {
		items := make([]string, len(mod.Exports))
		copy(items, mod.Exports)
		sort.Strings(items)
		return items
	}
	var items []string
	for symbol := range refs {
		if exports(mod, symbol) {
			items = append(items, symbol)
		}
	}
	sort.Strings(items)
	return items
}

func exports(m *graph.Module, symbol string) bool {
	for _, name := range m.Exports {
		if name == symbol {
			return true
		}
	}
	return false
}

func sortedEntryNames(entries map[string]EntryItem) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
