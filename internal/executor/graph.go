package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/duke-git/lancet/v2/fileutil"
)

// maxVertexID guards against edge lists that would allocate absurd adjacency tables.
const maxVertexID = 1 << 24

// Graph is an undirected graph stored as adjacency lists over vertices 0..n-1.
type Graph struct {
	adj [][]int
}

// NewGraph creates a graph with n isolated vertices.
func NewGraph(n int) *Graph {
	return &Graph{adj: make([][]int, n)}
}

// LoadGraph reads an edge list file with one "u v" pair per line.
func LoadGraph(path string) (*Graph, error) {
	lines, err := fileutil.ReadFileByLine(path)
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", path, err)
	}
	return ParseGraph(lines)
}

// ParseGraph builds a graph from edge list lines. Lines that are not exactly
// two non-negative integers are skipped. A self loop only adds its vertex.
func ParseGraph(lines []string) (*Graph, error) {
	g := NewGraph(0)
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		u, errU := strconv.Atoi(fields[0])
		v, errV := strconv.Atoi(fields[1])
		if errU != nil || errV != nil || u < 0 || v < 0 {
			continue
		}
		if u >= maxVertexID || v >= maxVertexID {
			return nil, fmt.Errorf("line %d: vertex id exceeds %d", i+1, maxVertexID)
		}
		if u == v {
			g.AddVertex(u)
			continue
		}
		g.AddEdge(u, v)
	}
	return g, nil
}

// AddVertex grows the graph so that v exists.
func (g *Graph) AddVertex(v int) {
	for len(g.adj) <= v {
		g.adj = append(g.adj, nil)
	}
}

// AddEdge adds an undirected edge.
func (g *Graph) AddEdge(u, v int) {
	g.AddVertex(u)
	g.AddVertex(v)
	g.adj[u] = append(g.adj[u], v)
	g.adj[v] = append(g.adj[v], u)
}

// NumVertices returns the vertex count.
func (g *Graph) NumVertices() int {
	return len(g.adj)
}

// Neighbors returns the adjacency list of v.
func (g *Graph) Neighbors(v int) []int {
	return g.adj[v]
}

// Degree returns the number of edges at v.
func (g *Graph) Degree(v int) int {
	return len(g.adj[v])
}

// IsRomanDominating reports whether labels is a Roman dominating function:
// every vertex labelled 0 has a neighbour labelled 2.
func (g *Graph) IsRomanDominating(labels []uint8) bool {
	if len(labels) != len(g.adj) {
		return false
	}
	for v, l := range labels {
		if l > 2 {
			return false
		}
		if l != 0 {
			continue
		}
		covered := false
		for _, n := range g.adj[v] {
			if labels[n] == 2 {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

// Weight returns the sum of labels.
func Weight(labels []uint8) int {
	w := 0
	for _, l := range labels {
		w += int(l)
	}
	return w
}
