package graph

import (
	"fmt"
	"strings"
)

// CircularDependencyError reports a cycle discovered while adding a
// provider's edges to the graph.
type CircularDependencyError struct {
	Node NodeKey
	Path []NodeKey
}

func (e CircularDependencyError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("circular dependency detected involving %s", e.Node.String())
	}

	steps := make([]string, len(e.Path))
	for i, node := range e.Path {
		steps[i] = node.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(steps, " -> "))
}
