// Package graph implements the static dependency graph used to validate a
// Collection before Build: every closed-type strategy is added as a node,
// edges point from a strategy to each of its dependencies, and adding a
// node that would close a cycle is rejected immediately rather than left
// to surface lazily at resolution time.
package graph

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/wireup-go/wireup/internal/reflection"
)

// Provider is anything that can contribute a node to the graph: a type it
// produces, an optional key, and the dependencies it needs to produce it.
// Descriptor implements this so the graph never needs to know about
// registration concerns like lifetime or priority.
type Provider interface {
	GetType() reflect.Type
	GetKey() any
	GetDependencies() []*reflection.Dependency
}

// NodeKey identifies one node: a service type plus an optional key, mirroring
// how the root package addresses a strategy.
type NodeKey struct {
	Type reflect.Type
	Key  any
}

func (k NodeKey) String() string {
	if k.Key != nil {
		return fmt.Sprintf("%v[%v]", k.Type, k.Key)
	}
	return fmt.Sprintf("%v", k.Type)
}

// Node is one vertex of the graph: a provider plus its resolved position
// relative to every other node currently in the graph.
type Node struct {
	Key      NodeKey
	Provider Provider

	InDegree  int
	OutDegree int
	Visited   bool
	Visiting  bool
	Depth     int

	Dependencies []NodeKey
	Dependents   []NodeKey
}

func (n *Node) String() string {
	return fmt.Sprintf("Node{%s, in:%d, out:%d, depth:%d}", n.Key.String(), n.InDegree, n.OutDegree, n.Depth)
}

// DependencyGraph tracks nodes and the edges between them, and answers
// structural questions about the graph (cycles, ordering, reachability).
// All mutation happens through AddProvider/RemoveProvider; everything else
// is a read.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[NodeKey]*Node
	edges map[NodeKey][]NodeKey

	sortedNodes      []*Node
	sortedNodesDirty bool
	cycleCache       map[NodeKey]bool
	cycleCacheDirty  bool
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes:            make(map[NodeKey]*Node),
		edges:            make(map[NodeKey][]NodeKey),
		cycleCache:       make(map[NodeKey]bool),
		sortedNodesDirty: true,
		cycleCacheDirty:  true,
	}
}

// AddProvider adds provider as a node, wiring an edge to every dependency
// it declares (creating placeholder nodes for dependencies not yet added).
// If the new edges close a cycle, the node and its edges are rolled back
// and a *CircularDependencyError is returned.
func (g *DependencyGraph) AddProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	key := NodeKey{Type: provider.GetType(), Key: provider.GetKey()}

	node, exists := g.nodes[key]
	if !exists {
		node = &Node{Key: key, Dependencies: make([]NodeKey, 0), Dependents: make([]NodeKey, 0)}
		g.nodes[key] = node
	}
	node.Provider = provider

	delete(g.edges, key)

	deps := provider.GetDependencies()
	edges := make([]NodeKey, 0, len(deps))
	for _, dep := range deps {
		depKey := NodeKey{Type: dep.Type, Key: dep.Key}
		edges = append(edges, depKey)

		if _, ok := g.nodes[depKey]; !ok {
			g.nodes[depKey] = &Node{Key: depKey, Dependencies: make([]NodeKey, 0), Dependents: make([]NodeKey, 0)}
		}
	}
	node.Dependencies = edges
	g.edges[key] = edges

	g.recomputeDegrees()
	g.invalidateCaches()

	if err := g.detectCyclesFrom(key); err != nil {
		delete(g.nodes, key)
		delete(g.edges, key)
		g.recomputeDegrees()
		return err
	}

	return nil
}

// RemoveProvider removes the node for (serviceType, key) and repairs every
// edge that referenced it, on either side.
func (g *DependencyGraph) RemoveProvider(serviceType reflect.Type, key any) {
	g.mu.Lock()
	defer g.mu.Unlock()

	target := NodeKey{Type: serviceType, Key: key}

	removed, ok := g.nodes[target]
	if !ok {
		return
	}

	delete(g.nodes, target)
	delete(g.edges, target)

	for from, edges := range g.edges {
		filtered := edges[:0:0]
		changed := false
		for _, e := range edges {
			if e == target {
				changed = true
				continue
			}
			filtered = append(filtered, e)
		}
		if !changed {
			continue
		}
		g.edges[from] = filtered
		if fromNode, ok := g.nodes[from]; ok {
			deps := fromNode.Dependencies[:0:0]
			for _, d := range fromNode.Dependencies {
				if d != target {
					deps = append(deps, d)
				}
			}
			fromNode.Dependencies = deps
		}
	}

	for _, dep := range removed.Dependencies {
		depNode, ok := g.nodes[dep]
		if !ok {
			continue
		}
		dependents := depNode.Dependents[:0:0]
		for _, d := range depNode.Dependents {
			if d != target {
				dependents = append(dependents, d)
			}
		}
		depNode.Dependents = dependents
	}

	g.recomputeDegrees()
	g.invalidateCaches()
}

// recomputeDegrees rebuilds in/out degree and dependent bookkeeping from
// the edge map; callers must hold g.mu.
func (g *DependencyGraph) recomputeDegrees() {
	for _, node := range g.nodes {
		node.InDegree = 0
		node.OutDegree = 0
		node.Dependents = make([]NodeKey, 0, 4)
	}

	for from, tos := range g.edges {
		fromNode, ok := g.nodes[from]
		if !ok {
			continue
		}
		fromNode.OutDegree = len(tos)
		fromNode.Dependencies = append(fromNode.Dependencies[:0:0], tos...)

		for _, to := range tos {
			toNode, ok := g.nodes[to]
			if !ok {
				continue
			}
			toNode.InDegree++
			toNode.Dependents = append(toNode.Dependents, from)
		}
	}
}

func (g *DependencyGraph) invalidateCaches() {
	g.sortedNodesDirty = true
	g.cycleCacheDirty = true
}

// TopologicalSort orders nodes so every dependency precedes its dependents,
// via Kahn's algorithm. Returns an error if the graph is not acyclic.
func (g *DependencyGraph) TopologicalSort() ([]*Node, error) {
	g.mu.RLock()
	if !g.sortedNodesDirty && g.sortedNodes != nil {
		out := make([]*Node, len(g.sortedNodes))
		copy(out, g.sortedNodes)
		g.mu.RUnlock()
		return out, nil
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// remaining counts each node's not-yet-emitted dependencies, so nodes
	// with no dependencies are emitted first.
	remaining := make(map[NodeKey]int, len(g.nodes))
	for key := range g.nodes {
		remaining[key] = 0
		for _, dep := range g.edges[key] {
			if _, ok := g.nodes[dep]; ok {
				remaining[key]++
			}
		}
	}

	queue := make([]NodeKey, 0)
	for key, degree := range remaining {
		if degree == 0 {
			queue = append(queue, key)
		}
	}

	ordered := make([]*Node, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		node := g.nodes[current]
		if node == nil {
			continue
		}
		ordered = append(ordered, node)

		for _, dependent := range node.Dependents {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(ordered) != len(g.nodes) {
		return nil, fmt.Errorf("circular dependency detected: graph contains %d nodes but only %d could be sorted", len(g.nodes), len(ordered))
	}

	g.sortedNodes = ordered
	g.sortedNodesDirty = false

	out := make([]*Node, len(ordered))
	copy(out, ordered)
	return out, nil
}

// DetectCycles walks every node with depth-first search and reports the
// first cycle found, if any.
func (g *DependencyGraph) DetectCycles() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.cycleCacheDirty {
		for key, cyclic := range g.cycleCache {
			if cyclic {
				return &CircularDependencyError{Node: key, Path: g.findCyclePath(key)}
			}
		}
		return nil
	}

	for _, node := range g.nodes {
		node.Visited = false
		node.Visiting = false
	}
	g.cycleCache = make(map[NodeKey]bool)

	for key := range g.nodes {
		if g.nodes[key].Visited {
			continue
		}
		if err := g.detectCyclesFrom(key); err != nil {
			g.cycleCacheDirty = false
			return err
		}
	}

	g.cycleCacheDirty = false
	return nil
}

// detectCyclesFrom runs an explicit-stack depth-first search from start so
// a long dependency chain never risks a recursive stack overflow.
func (g *DependencyGraph) detectCyclesFrom(start NodeKey) error {
	if _, ok := g.nodes[start]; !ok {
		return nil
	}

	type frame struct {
		key     NodeKey
		leaving bool
	}

	stack := []frame{{key: start}}
	onStack := make(map[NodeKey]bool)
	done := make(map[NodeKey]bool)

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.leaving {
			stack = stack[:len(stack)-1]
			delete(onStack, top.key)
			done[top.key] = true
			g.cycleCache[top.key] = false
			continue
		}

		if onStack[top.key] {
			g.cycleCache[top.key] = true
			return &CircularDependencyError{Node: top.key, Path: g.findCyclePath(top.key)}
		}
		if done[top.key] {
			stack = stack[:len(stack)-1]
			continue
		}

		onStack[top.key] = true
		stack[len(stack)-1].leaving = true

		for _, dep := range g.edges[top.key] {
			if !done[dep] {
				stack = append(stack, frame{key: dep})
			}
		}
	}

	return nil
}

// findCyclePath reconstructs the cycle containing start for error messages.
func (g *DependencyGraph) findCyclePath(start NodeKey) []NodeKey {
	var path []NodeKey
	visited := make(map[NodeKey]bool)
	parent := make(map[NodeKey]NodeKey)

	var walk func(current NodeKey) bool
	walk = func(current NodeKey) bool {
		if visited[current] {
			cycle := []NodeKey{current}
			for p := parent[current]; p != current && !visited[p]; p = parent[p] {
				cycle = append([]NodeKey{p}, cycle...)
				visited[p] = true
				if len(cycle) > len(g.nodes) {
					break
				}
			}
			path = cycle
			return true
		}
		visited[current] = true

		for _, next := range g.edges[current] {
			if _, has := parent[next]; !has {
				parent[next] = current
			}
			if next == start || walk(next) {
				if len(path) == 0 {
					path = []NodeKey{current}
				} else if path[0] != current {
					path = append([]NodeKey{current}, path...)
				}
				return true
			}
		}
		return false
	}

	walk(start)

	if len(path) > 0 && path[len(path)-1] != start {
		path = append(path, start)
	}
	return path
}

// GetDependencies returns the direct dependencies of (serviceType, key).
func (g *DependencyGraph) GetDependencies(serviceType reflect.Type, key any) []NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[NodeKey{Type: serviceType, Key: key}]
	if !ok {
		return nil
	}
	out := make([]NodeKey, len(node.Dependencies))
	copy(out, node.Dependencies)
	return out
}

// GetDependents returns the nodes that directly depend on (serviceType, key).
func (g *DependencyGraph) GetDependents(serviceType reflect.Type, key any) []NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[NodeKey{Type: serviceType, Key: key}]
	if !ok {
		return nil
	}
	out := make([]NodeKey, len(node.Dependents))
	copy(out, node.Dependents)
	return out
}

// GetTransitiveDependencies returns every dependency reachable from
// (serviceType, key), direct or indirect.
func (g *DependencyGraph) GetTransitiveDependencies(serviceType reflect.Type, key any) []NodeKey {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[NodeKey]bool)
	var out []NodeKey

	var collect func(current NodeKey)
	collect = func(current NodeKey) {
		if visited[current] {
			return
		}
		visited[current] = true
		for _, dep := range g.edges[current] {
			if !visited[dep] {
				out = append(out, dep)
				collect(dep)
			}
		}
	}

	collect(NodeKey{Type: serviceType, Key: key})
	return out
}

// GetNode returns the node for (serviceType, key), or nil if absent.
func (g *DependencyGraph) GetNode(serviceType reflect.Type, key any) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[NodeKey{Type: serviceType, Key: key}]
}

// HasNode reports whether (serviceType, key) has a node.
func (g *DependencyGraph) HasNode(serviceType reflect.Type, key any) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[NodeKey{Type: serviceType, Key: key}]
	return ok
}

// Clear removes every node and edge.
func (g *DependencyGraph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[NodeKey]*Node)
	g.edges = make(map[NodeKey][]NodeKey)
	g.sortedNodes = nil
	g.invalidateCaches()
}

// Size reports the number of nodes in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// IsAcyclic reports whether the graph currently has no cycles.
func (g *DependencyGraph) IsAcyclic() bool {
	return g.DetectCycles() == nil
}

// GetRoots returns every node with no dependencies.
func (g *DependencyGraph) GetRoots() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var roots []*Node
	for _, node := range g.nodes {
		if node.OutDegree == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}

// GetLeaves returns every node with no dependents.
func (g *DependencyGraph) GetLeaves() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var leaves []*Node
	for _, node := range g.nodes {
		if node.InDegree == 0 {
			leaves = append(leaves, node)
		}
	}
	return leaves
}

// CalculateDepths assigns each node the length (in edges) of its longest
// dependency path down to a root (a node with no dependencies, depth 0),
// via breadth-first relaxation.
func (g *DependencyGraph) CalculateDepths() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, node := range g.nodes {
		node.Depth = -1
	}

	queue := make([]*Node, 0)
	for _, node := range g.nodes {
		if len(node.Dependencies) == 0 {
			node.Depth = 0
			queue = append(queue, node)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, depKey := range current.Dependents {
			dep, ok := g.nodes[depKey]
			if !ok {
				continue
			}
			if newDepth := current.Depth + 1; dep.Depth < newDepth {
				dep.Depth = newDepth
				queue = append(queue, dep)
			}
		}
	}
}
