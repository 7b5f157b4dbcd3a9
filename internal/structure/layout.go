package structure

// Rect is an axis-aligned rectangle in viewport units.
type Rect struct {
	X, Y, W, H float64
}

// Root grid used to place the RootCount roots.
const (
	RootCols = 4
	RootRows = RootCount / RootCols
)

// Layout assigns a rectangle to every node of t inside a w×h viewport. The
// result is indexed by NodeID.
func Layout(t *Tree, w, h float64) []Rect {
	rects := make([]Rect, len(t.Nodes))
	cw := w / RootCols
	ch := h / RootRows
	for i, root := range t.Roots {
		col := i % RootCols
		row := i / RootCols
		t.place(rects, root, Rect{X: float64(col) * cw, Y: float64(row) * ch, W: cw, H: ch})
	}
	return rects
}

func (t *Tree) place(rects []Rect, id NodeID, r Rect) {
	rects[id] = r
	n := t.Nodes[id]
	if n.Leaf() {
		return
	}
	a, b := float64(n.Ratio[0]), float64(n.Ratio[1])
	first := a / (a + b)
	var r0, r1 Rect
	if n.Split == Vertical {
		w0 := r.W * first
		r0 = Rect{X: r.X, Y: r.Y, W: w0, H: r.H}
		r1 = Rect{X: r.X + w0, Y: r.Y, W: r.W - w0, H: r.H}
	} else {
		h0 := r.H * first
		r0 = Rect{X: r.X, Y: r.Y, W: r.W, H: h0}
		r1 = Rect{X: r.X, Y: r.Y + h0, W: r.W, H: r.H - h0}
	}
	t.place(rects, n.Children[0], r0)
	t.place(rects, n.Children[1], r1)
}
