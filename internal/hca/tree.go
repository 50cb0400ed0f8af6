package hca

import (
	"strconv"
	"strings"
)

// Node is a cluster tree node. Leaves have Index >= 0 and no children;
// internal nodes have Index -1 and exactly two children.
type Node struct {
	Index  int     `json:"index"`
	Label  string  `json:"label,omitempty"`
	Height float64 `json:"height"`
	Size   int     `json:"size"`
	Left   *Node   `json:"left,omitempty"`
	Right  *Node   `json:"right,omitempty"`
}

// IsLeaf reports whether n is a sample.
func (n *Node) IsLeaf() bool { return n.Left == nil && n.Right == nil }

// Tree is a strictly binary merge tree over Labels.
type Tree struct {
	Root    *Node    `json:"root"`
	Labels  []string `json:"labels"`
	Merges  []Merge  `json:"merges"`
	Linkage Linkage  `json:"linkage"`
}

func newTree(labels []string, merges []Merge, l Linkage) *Tree {
	n := len(labels)
	nodes := make([]*Node, n, n+len(merges))
	for i, lbl := range labels {
		nodes[i] = &Node{Index: i, Label: lbl, Size: 1}
	}
	for _, m := range merges {
		nodes = append(nodes, &Node{Index: -1, Height: m.Height, Size: m.Size, Left: nodes[m.A], Right: nodes[m.B]})
	}
	return &Tree{Root: nodes[len(nodes)-1], Labels: labels, Merges: merges, Linkage: l}
}

// LeafOrder returns leaf indexes in left-to-right dendrogram order.
func (t *Tree) LeafOrder() []int {
	out := make([]int, 0, len(t.Labels))
	var walk func(*Node)
	walk = func(n *Node) {
		if n.IsLeaf() {
			out = append(out, n.Index)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(t.Root)
	return out
}

// Heights returns merge heights in merge order.
func (t *Tree) Heights() []float64 {
	out := make([]float64, len(t.Merges))
	for i, m := range t.Merges {
		out[i] = m.Height
	}
	return out
}

// Newick renders the tree with branch lengths, e.g. "((a:1,b:1):2,c:3);".
func (t *Tree) Newick() string {
	var b strings.Builder
	var walk func(n *Node, parent float64)
	walk = func(n *Node, parent float64) {
		if n.IsLeaf() {
			b.WriteString(newickLabel(n.Label))
		} else {
			b.WriteByte('(')
			walk(n.Left, n.Height)
			b.WriteByte(',')
			walk(n.Right, n.Height)
			b.WriteByte(')')
		}
		if n != t.Root {
			b.WriteByte(':')
			b.WriteString(strconv.FormatFloat(parent-n.Height, 'g', 6, 64))
		}
	}
	walk(t.Root, t.Root.Height)
	b.WriteByte(';')
	return b.String()
}

func newickLabel(s string) string {
	if strings.ContainsAny(s, " ():;,'") {
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return s
}
