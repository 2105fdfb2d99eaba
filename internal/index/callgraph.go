package index

import (
	"fmt"
	"go/types"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/tools/go/callgraph/cha"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/abramin/callrisk/internal/graph"
)

const (
	maxIDLength   = 100
	maxNameLength = 200
	hashLength    = 8
)

// CallGraphBuilder builds a call graph from SSA representation.
type CallGraphBuilder struct {
	loader      *Loader
	logger      *zap.Logger
	prog        *ssa.Program
	projectPkgs map[string]bool // Set of project package paths (not dependencies)
}

// NewCallGraphBuilder creates a new call graph builder.
func NewCallGraphBuilder(loader *Loader) *CallGraphBuilder {
	return &CallGraphBuilder{
		loader:      loader,
		logger:      loader.logger,
		projectPkgs: make(map[string]bool),
	}
}

// Build constructs the SSA program for all loaded packages.
func (b *CallGraphBuilder) Build() {
	for _, pkg := range b.loader.Packages() {
		b.projectPkgs[pkg.PkgPath] = true
	}

	prog, _ := ssautil.AllPackages(b.loader.Packages(), ssa.InstantiateGenerics)
	prog.Build()
	b.prog = prog
}

// CallGraphResult holds counts describing an extracted graph.
type CallGraphResult struct {
	Functions   int
	Edges       int
	Entrypoints int
	Handlers    int
}

// node is a project function kept in the graph.
type node struct {
	fn      *ssa.Function
	name    string
	id      graph.FunctionID
	entry   bool
	handler HandlerKind
}

// Extract computes a CHA call graph and reduces it to project functions.
// Closures are folded into their enclosing function and synthetic wrappers
// are looked through, so an edge a -> wrapper -> b becomes a -> b. Self-loops
// and duplicate edges are dropped.
func (b *CallGraphBuilder) Extract() (graph.Graph, *CallGraphResult, error) {
	if b.prog == nil {
		return graph.Graph{}, nil, fmt.Errorf("SSA program not built")
	}
	cg := cha.CallGraph(b.prog)
	cg.DeleteSyntheticNodes()

	nodes := make(map[*ssa.Function]*node)
	for fn := range cg.Nodes {
		root := b.canonical(fn)
		if root == nil || nodes[root] != nil || !b.keep(root) {
			continue
		}
		nodes[root] = b.describe(root)
	}

	ordered := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].name < ordered[j].name })
	assignIDs(ordered)

	result := &CallGraphResult{}
	g := graph.Graph{Functions: make([]graph.Function, 0, len(ordered))}
	for _, n := range ordered {
		g.Functions = append(g.Functions, graph.Function{
			ID:           n.id,
			Name:         truncate(n.name, maxNameLength),
			IsEntrypoint: n.entry,
		})
		if n.entry {
			result.Entrypoints++
		}
		if n.handler != "" {
			result.Handlers++
		}
	}

	type pair struct{ from, to graph.FunctionID }
	seen := make(map[pair]bool)
	for fn, cgNode := range cg.Nodes {
		caller := nodes[b.canonical(fn)]
		if caller == nil {
			continue
		}
		for _, e := range cgNode.Out {
			callee := nodes[b.canonical(e.Callee.Func)]
			if callee == nil || callee == caller {
				continue
			}
			p := pair{caller.id, callee.id}
			if seen[p] {
				continue
			}
			seen[p] = true
			g.Edges = append(g.Edges, graph.Edge{From: p.from, To: p.to})
		}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})

	result.Functions = len(g.Functions)
	result.Edges = len(g.Edges)
	b.logger.Debug("call graph extracted",
		zap.Int("functions", result.Functions),
		zap.Int("edges", result.Edges),
		zap.Int("entrypoints", result.Entrypoints),
	)
	return g, result, nil
}

// canonical maps closures to their outermost enclosing function and generic
// instantiations to their origin.
func (b *CallGraphBuilder) canonical(fn *ssa.Function) *ssa.Function {
	if fn == nil {
		return nil
	}
	for fn.Parent() != nil {
		fn = fn.Parent()
	}
	if origin := fn.Origin(); origin != nil {
		fn = origin
	}
	return fn
}

// keep reports whether fn is a declared function of a project package in a
// file that is not excluded.
func (b *CallGraphBuilder) keep(fn *ssa.Function) bool {
	if fn.Synthetic != "" || fn.Pkg == nil || !b.projectPkgs[fn.Pkg.Pkg.Path()] {
		return false
	}
	if !fn.Pos().IsValid() {
		return false
	}
	return !b.loader.shouldExcludeFile(b.loader.FileSet().Position(fn.Pos()).Filename)
}

// describe names fn and decides whether it is an entry point.
func (b *CallGraphBuilder) describe(fn *ssa.Function) *node {
	pkg := fn.Pkg.Pkg
	n := &node{fn: fn, name: qualifiedName(fn), handler: matchHTTPHandler(fn)}

	funcName := fn.Name()
	if recv := fn.Signature.Recv(); recv != nil {
		funcName = receiverName(recv.Type()) + "." + fn.Name()
	}
	n.entry = n.handler != "" ||
		b.loader.cfg.IsEntrypoint(pkg.Path(), pkg.Name(), funcName, fn.Object() != nil && fn.Object().Exported())
	return n
}

// qualifiedName returns "pkg/path.Func" or "pkg/path.(*Recv).Method".
func qualifiedName(fn *ssa.Function) string {
	pkgPath := fn.Pkg.Pkg.Path()
	if recv := fn.Signature.Recv(); recv != nil {
		return fmt.Sprintf("%s.(%s).%s", pkgPath, formatReceiverType(recv.Type()), fn.Name())
	}
	return pkgPath + "." + fn.Name()
}

// formatReceiverType formats a receiver type as "T" or "*T".
func formatReceiverType(t types.Type) string {
	switch typ := types.Unalias(t).(type) {
	case *types.Pointer:
		return "*" + formatReceiverType(typ.Elem())
	case *types.Named:
		return typ.Obj().Name()
	default:
		return types.TypeString(t, nil)
	}
}

// receiverName is the receiver type name without pointer.
func receiverName(t types.Type) string {
	return strings.TrimPrefix(formatReceiverType(t), "*")
}

// assignIDs gives every node a unique id in the wire alphabet.
func assignIDs(nodes []*node) {
	used := make(map[graph.FunctionID]bool, len(nodes))
	for _, n := range nodes {
		id := sanitizeID(n.name)
		if used[id] {
			id = hashedID(id, n.name)
		}
		for i := 2; used[id]; i++ {
			id = hashedID(id, fmt.Sprintf("%s#%d", n.name, i))
		}
		used[id] = true
		n.id = id
	}
}

// sanitizeID maps a qualified name to [A-Za-z0-9_-], at most maxIDLength
// characters. Parentheses and stars are dropped, any other character outside
// the alphabet becomes '_'.
func sanitizeID(name string) graph.FunctionID {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '(' || r == ')' || r == '*':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	id := sb.String()
	if len(id) > maxIDLength {
		return hashedID(graph.FunctionID(id), name)
	}
	return graph.FunctionID(id)
}

// hashedID shortens id and appends a stable hash of name.
func hashedID(id graph.FunctionID, name string) graph.FunctionID {
	sum := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String(), "-", "")[:hashLength]
	prefix := truncate(string(id), maxIDLength-hashLength-1)
	return graph.FunctionID(prefix + "-" + sum)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
