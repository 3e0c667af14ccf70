package pipeline

import (
	"fmt"

	"github.com/chicogong/ytagents/pkg/schemas"
	"github.com/chicogong/ytagents/pkg/stages"
)

// Graph is the stage dependency DAG
type Graph struct {
	Nodes []schemas.StageName

	index    map[schemas.StageName]bool
	outgoing map[schemas.StageName][]schemas.StageName
	incoming map[schemas.StageName][]schemas.StageName
}

func NewGraph() *Graph {
	return &Graph{
		index:    make(map[schemas.StageName]bool),
		outgoing: make(map[schemas.StageName][]schemas.StageName),
		incoming: make(map[schemas.StageName][]schemas.StageName),
	}
}

// AddNode adds a stage to the graph
func (g *Graph) AddNode(name schemas.StageName) {
	if g.index[name] {
		return
	}
	g.Nodes = append(g.Nodes, name)
	g.index[name] = true
}

// AddEdge records that to depends on from
func (g *Graph) AddEdge(from, to schemas.StageName) {
	g.outgoing[from] = append(g.outgoing[from], to)
	g.incoming[to] = append(g.incoming[to], from)
}

// Predecessors returns the stages name depends on
func (g *Graph) Predecessors(name schemas.StageName) []schemas.StageName {
	return g.incoming[name]
}

// BuildGraph builds the DAG from the executors' declared dependencies.
// A dependency on an unregistered stage is an error.
func BuildGraph(executors []stages.Executor) (*Graph, error) {
	g := NewGraph()
	for _, ex := range executors {
		g.AddNode(ex.Describe().Name)
	}
	for _, ex := range executors {
		d := ex.Describe()
		for _, dep := range d.DependsOn {
			if !g.index[dep] {
				return nil, fmt.Errorf("stage %s depends on unregistered stage %s", d.Name, dep)
			}
			g.AddEdge(dep, d.Name)
		}
	}
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// DetectCycles checks if the graph contains any cycles using DFS
func (g *Graph) DetectCycles() error {
	visited := make(map[schemas.StageName]bool)
	recStack := make(map[schemas.StageName]bool)

	for _, node := range g.Nodes {
		if !visited[node] {
			if err := g.dfsCheckCycle(node, visited, recStack); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) dfsCheckCycle(node schemas.StageName, visited, recStack map[schemas.StageName]bool) error {
	visited[node] = true
	recStack[node] = true

	for _, successor := range g.outgoing[node] {
		if !visited[successor] {
			if err := g.dfsCheckCycle(successor, visited, recStack); err != nil {
				return err
			}
		} else if recStack[successor] {
			return fmt.Errorf("cycle detected: %s -> %s", node, successor)
		}
	}

	recStack[node] = false
	return nil
}

// TopologicalSort orders stages with Kahn's algorithm. Ready stages are
// taken in registration order so the result is deterministic.
func (g *Graph) TopologicalSort() ([]schemas.StageName, error) {
	inDegree := make(map[schemas.StageName]int, len(g.Nodes))
	for _, node := range g.Nodes {
		inDegree[node] = len(g.incoming[node])
	}

	done := make(map[schemas.StageName]bool, len(g.Nodes))
	result := make([]schemas.StageName, 0, len(g.Nodes))
	for len(result) < len(g.Nodes) {
		progressed := false
		for _, node := range g.Nodes {
			if done[node] || inDegree[node] > 0 {
				continue
			}
			done[node] = true
			result = append(result, node)
			for _, successor := range g.outgoing[node] {
				inDegree[successor]--
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, fmt.Errorf("graph contains cycle (processed %d/%d nodes)", len(result), len(g.Nodes))
		}
	}
	return result, nil
}
