package structure

// MaxDepth bounds the recursion of the partition tree.
const MaxDepth = 5

// RootCount is the number of independent root nodes built per generation.
const RootCount = 16

// Scroll speed range assigned to leaves.
const (
	MinScrollSpeed   = 0.2
	ScrollSpeedRange = 1.2
)

// Rand is the random source consumed by the generator. *math/rand.Rand
// satisfies it.
type Rand interface {
	Float64() float64
}

// NodeID addresses a node in a Tree's arena. It doubles as the visual handle
// of the element that node describes.
type NodeID int

// NoNode marks an absent child or parent.
const NoNode NodeID = -1

// Orientation is the split direction of an internal node.
type Orientation int

const (
	// Horizontal stacks the two children as rows.
	Horizontal Orientation = iota
	// Vertical places the two children side by side as columns.
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

// Node is one element of the partition tree. Internal nodes carry split
// hints, leaves point at their Cell.
type Node struct {
	ID       NodeID
	Parent   NodeID
	Depth    int
	Split    Orientation
	Ratio    [2]int // flex weights, each in 1..3
	Children [2]NodeID
	Cell     int // index into Tree.Cells, -1 for internal nodes
}

// Leaf reports whether the node terminated without splitting.
func (n Node) Leaf() bool { return n.Cell >= 0 }

// Cell is a leaf of the tree and the unit the pattern addresses by index.
type Cell struct {
	Depth        int
	Horizontal   bool
	ScrollOffset float64
	ScrollSpeed  float64
	Handle       NodeID
	Label        int
}

// Tree is the arena produced by one generation. Nodes are stored in
// depth-first pre-order; Cells in left-to-right depth-first order.
type Tree struct {
	Density float64
	Nodes   []Node
	Roots   []NodeID
	Cells   []Cell
}

// LabelSlots is the number of display texts a leaf label indexes into.
const LabelSlots = 10

// Generate builds RootCount roots, each splitting with probability
// (1 - density) until MaxDepth.
func Generate(density float64, rng Rand) *Tree {
	t := &Tree{
		Density: density,
		Nodes:   make([]Node, 0, RootCount*4),
		Roots:   make([]NodeID, 0, RootCount),
	}
	for i := 0; i < RootCount; i++ {
		t.Roots = append(t.Roots, t.build(NoNode, 0, density, rng))
	}
	return t
}

func (t *Tree) build(parent NodeID, depth int, density float64, rng Rand) NodeID {
	id := NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{
		ID:       id,
		Parent:   parent,
		Depth:    depth,
		Children: [2]NodeID{NoNode, NoNode},
		Cell:     -1,
	})
	// No draw is consumed once the depth cap is reached.
	if depth < MaxDepth && rng.Float64() > density {
		split := Horizontal
		if rng.Float64() > 0.5 {
			split = Vertical
		}
		ratio := [2]int{flexWeight(rng), flexWeight(rng)}
		t.Nodes[id].Split = split
		t.Nodes[id].Ratio = ratio
		for i := 0; i < 2; i++ {
			child := t.build(id, depth+1, density, rng)
			t.Nodes[id].Children[i] = child
		}
		return id
	}

	label := int(rng.Float64() * LabelSlots)
	if label >= LabelSlots {
		label = LabelSlots - 1
	}
	horizontal := rng.Float64() > 0.5
	speed := MinScrollSpeed + rng.Float64()*ScrollSpeedRange
	t.Nodes[id].Cell = len(t.Cells)
	t.Cells = append(t.Cells, Cell{
		Depth:       depth,
		Horizontal:  horizontal,
		ScrollSpeed: speed,
		Handle:      id,
		Label:       label,
	})
	return id
}

func flexWeight(rng Rand) int {
	w := int(rng.Float64()*3) + 1
	if w > 3 {
		w = 3
	}
	return w
}

// Node returns the node for id. It panics on an out-of-range id like a slice
// index would.
func (t *Tree) Node(id NodeID) Node {
	return t.Nodes[id]
}

// MaxCells is the upper bound on the number of cells a generation can hold.
func MaxCells() int {
	return RootCount << MaxDepth
}

// FontSize returns the font-size hint in pixels for a leaf at depth.
func FontSize(depth int) float64 {
	switch depth {
	case 0:
		return 40
	case 1:
		return 18
	case 2:
		return 9
	case 3:
		return 5
	case 4:
		return 3
	default:
		return 2.5
	}
}
