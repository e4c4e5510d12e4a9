package gshade

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// ItemHandle identifies a pipeline item independently of its position in the
// pass list. A handle stays valid until its item is removed; the slot's
// generation is then bumped so a handle to a later item reusing the slot never
// compares equal to the old one. The zero ItemHandle is never valid.
type ItemHandle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero (invalid) handle.
func (h ItemHandle) IsZero() bool { return h.gen == 0 }

func (h ItemHandle) String() string {
	return fmt.Sprintf("item#%d.%d", h.index, h.gen)
}

// ItemKind tags the payload type of a pipeline item.
type ItemKind uint8

const (
	KindUnknown ItemKind = iota
	KindShaderPass
	KindComputePass
	KindAudioPass
)

func (k ItemKind) String() string {
	switch k {
	case KindShaderPass:
		return "ShaderPass"
	case KindComputePass:
		return "ComputePass"
	case KindAudioPass:
		return "AudioPass"
	}
	return "Unknown"
}

// Item is a type-tagged pipeline item payload.
type Item interface {
	Kind() ItemKind
	// Sources returns the shader units owned by the item in stage order.
	// Optional stages that are absent are not returned.
	Sources() []*ShaderSourceUnit
	// PassMacros returns macros applied to every unit of the item.
	PassMacros() []Macro
}

var (
	errStaleHandle = errors.New("stale or invalid item handle")
	errNilItem     = errors.New("nil pipeline item")
)

type slot struct {
	gen  uint32
	live bool
	name string
	item Item
}

// Pipeline is an ordered arena of pipeline items. It is not safe for concurrent use.
type Pipeline struct {
	slots []slot
	free  []uint32
	order []ItemHandle
}

// Add appends a named item to the end of the pipeline and returns its handle.
func (p *Pipeline) Add(name string, item Item) (ItemHandle, error) {
	if item == nil {
		return ItemHandle{}, errNilItem
	}
	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		idx = uint32(len(p.slots))
		p.slots = append(p.slots, slot{})
	}
	s := &p.slots[idx]
	s.gen++
	s.live = true
	s.name = name
	s.item = item
	h := ItemHandle{index: idx, gen: s.gen}
	p.order = append(p.order, h)
	return h, nil
}

// Remove destroys the item referenced by h. Removing a stale handle is an error.
func (p *Pipeline) Remove(h ItemHandle) error {
	s := p.lookup(h)
	if s == nil {
		return errStaleHandle
	}
	s.live = false
	s.item = nil
	s.name = ""
	p.free = append(p.free, h.index)
	for i := range p.order {
		if p.order[i] == h {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the item referenced by h and whether h is live.
func (p *Pipeline) Get(h ItemHandle) (Item, bool) {
	s := p.lookup(h)
	if s == nil {
		return nil, false
	}
	return s.item, true
}

// Name returns the display name of h, or the empty string for stale handles.
func (p *Pipeline) Name(h ItemHandle) string {
	s := p.lookup(h)
	if s == nil {
		return ""
	}
	return s.name
}

// Rename changes the display name of a live item.
func (p *Pipeline) Rename(h ItemHandle, name string) error {
	s := p.lookup(h)
	if s == nil {
		return errStaleHandle
	}
	s.name = name
	return nil
}

// Valid reports whether h references a live item.
func (p *Pipeline) Valid(h ItemHandle) bool { return p.lookup(h) != nil }

// Find returns the handle of the first item in pipeline order named name.
func (p *Pipeline) Find(name string) (ItemHandle, bool) {
	for _, h := range p.order {
		if p.slots[h.index].name == name {
			return h, true
		}
	}
	return ItemHandle{}, false
}

// Len returns the number of live items.
func (p *Pipeline) Len() int { return len(p.order) }

// Items appends the live item handles in pipeline order to dst.
func (p *Pipeline) Items(dst []ItemHandle) []ItemHandle {
	return append(dst, p.order...)
}

// Move relocates h to position pos in the pass list, shifting the items in between.
func (p *Pipeline) Move(h ItemHandle, pos int) error {
	if p.lookup(h) == nil {
		return errStaleHandle
	} else if pos < 0 || pos >= len(p.order) {
		return fmt.Errorf("move position %d out of range [0,%d)", pos, len(p.order))
	}
	cur := -1
	for i := range p.order {
		if p.order[i] == h {
			cur = i
			break
		}
	}
	if cur == pos {
		return nil
	}
	p.order = append(p.order[:cur], p.order[cur+1:]...)
	p.order = append(p.order, ItemHandle{})
	copy(p.order[pos+1:], p.order[pos:])
	p.order[pos] = h
	return nil
}

func (p *Pipeline) lookup(h ItemHandle) *slot {
	if h.gen == 0 || int(h.index) >= len(p.slots) {
		return nil
	}
	s := &p.slots[h.index]
	if !s.live || s.gen != h.gen {
		return nil
	}
	return s
}

// ShaderPass renders its drawables with a vertex, pixel and optional geometry stage.
type ShaderPass struct {
	VS ShaderSourceUnit
	PS ShaderSourceUnit
	// GS is nil when the pass has no geometry stage.
	GS        *ShaderSourceUnit
	Macros    []Macro
	Drawables []*Drawable
	Target    RenderTarget
}

func (*ShaderPass) Kind() ItemKind { return KindShaderPass }

func (sp *ShaderPass) Sources() []*ShaderSourceUnit {
	units := []*ShaderSourceUnit{&sp.VS, &sp.PS}
	if sp.GS != nil {
		units = append(units, sp.GS)
	}
	return units
}

func (sp *ShaderPass) PassMacros() []Macro { return sp.Macros }

// UsesGeometry reports whether the pass has a geometry stage.
func (sp *ShaderPass) UsesGeometry() bool { return !sp.GS.IsZero() }

// ComputePass dispatches a single compute stage.
type ComputePass struct {
	CS         ShaderSourceUnit
	Macros     []Macro
	WorkGroups [3]uint32
}

func (*ComputePass) Kind() ItemKind                  { return KindComputePass }
func (cp *ComputePass) Sources() []*ShaderSourceUnit { return []*ShaderSourceUnit{&cp.CS} }
func (cp *ComputePass) PassMacros() []Macro          { return cp.Macros }

// AudioPass synthesizes audio with a pixel stage run over a fullscreen triangle.
type AudioPass struct {
	PS     ShaderSourceUnit
	Macros []Macro
}

func (*AudioPass) Kind() ItemKind                  { return KindAudioPass }
func (ap *AudioPass) Sources() []*ShaderSourceUnit { return []*ShaderSourceUnit{&ap.PS} }
func (ap *AudioPass) PassMacros() []Macro          { return ap.Macros }

// RenderTarget configures the framebuffer a ShaderPass draws into.
type RenderTarget struct {
	// Samples above 1 create a multisampled twin that is resolved after drawing.
	Samples    int
	ClearColor [4]float32
	NoClear    bool
}

// DrawableKind is the source of a drawable's geometry.
type DrawableKind uint8

const (
	DrawGeometry DrawableKind = iota
	DrawModel
	DrawVertexBuffer
	DrawPlugin
)

// Shape is the analytic shape of a DrawGeometry drawable.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeCube
	ShapeSphere
	ShapePlane
	ShapeTriangle
	ShapeCircle
)

// Topology is the primitive topology used to draw a drawable.
type Topology uint8

const (
	TopologyTriangles Topology = iota
	TopologyTriangleStrip
	TopologyLines
	TopologyLineStrip
	TopologyPoints
)

func (t Topology) String() string {
	switch t {
	case TopologyTriangles:
		return "triangles"
	case TopologyTriangleStrip:
		return "triangle-strip"
	case TopologyLines:
		return "lines"
	case TopologyLineStrip:
		return "line-strip"
	case TopologyPoints:
		return "points"
	}
	return "topology(?)"
}

// PrimitiveSize returns the number of vertices in one primitive.
func (t Topology) PrimitiveSize() int {
	switch t {
	case TopologyTriangles, TopologyTriangleStrip:
		return 3
	case TopologyLines, TopologyLineStrip:
		return 2
	}
	return 1
}

// IsStrip reports whether consecutive primitives share vertices.
func (t Topology) IsStrip() bool {
	return t == TopologyTriangleStrip || t == TopologyLineStrip
}

// PrimitiveCount returns the number of primitives formed by n vertices.
func (t Topology) PrimitiveCount(n int) int {
	sz := t.PrimitiveSize()
	if n < sz {
		return 0
	}
	if t.IsStrip() {
		return n - sz + 1
	}
	return n / sz
}

// PrimitiveRange returns the first vertex and vertex count needed to draw
// count primitives starting at primitive index first.
func (t Topology) PrimitiveRange(first, count int) (firstVertex, numVertices int) {
	sz := t.PrimitiveSize()
	if t.IsStrip() {
		return first, count + sz - 1
	}
	return first * sz, count * sz
}

// Transform places a drawable in world space. Rotation holds Euler angles in radians.
type Transform struct {
	Position ms3.Vec
	Rotation ms3.Vec
	Scale    ms3.Vec
}

// Drawable is one object drawn by a ShaderPass. Its GPU resources (VAO, buffers)
// are owned by the host's object manager.
type Drawable struct {
	Name     string
	Kind     DrawableKind
	Shape    Shape
	Topology Topology
	VAO      uint32
	// VertexCount is the number of vertices, or indices when Indexed.
	VertexCount   int
	Indexed       bool
	Instanced     bool
	InstanceCount int
	Hidden        bool
	Transform     Transform
	// Bounds is the local-space bounding box used for geometric picking of
	// models and vertex buffers.
	Bounds ms3.Box
}

// Instances returns the number of instances drawn, at least 1.
func (d *Drawable) Instances() int {
	if !d.Instanced || d.InstanceCount < 1 {
		return 1
	}
	return d.InstanceCount
}
