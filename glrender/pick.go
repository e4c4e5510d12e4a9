package glrender

import (
	"context"
	"errors"
	"fmt"

	"github.com/soypat/gshade"
)

// maxDebugID is the largest ID representable in the 24 bits of an RGB pixel.
const maxDebugID = 1<<24 - 1

// EncodeID returns the debug color encoding id: the red channel holds the low
// byte, green the middle byte and blue the high byte.
func EncodeID(id uint32) [4]float32 {
	return [4]float32{
		float32(id&0xff) / 255,
		float32((id>>8)&0xff) / 255,
		float32((id>>16)&0xff) / 255,
		1,
	}
}

// DecodeID recovers the id encoded in a pixel read back from a debug render.
func DecodeID(px [4]byte) uint32 {
	return uint32(px[0]) | uint32(px[1])<<8 | uint32(px[2])<<16
}

// PickResult identifies a drawable hit by a pick.
type PickResult struct {
	Pass gshade.ItemHandle
	// Drawable is the index of the drawable in the pass.
	Drawable int
	// ID is the DebugID the drawable was rendered with.
	ID uint32
}

var errNoRender = errors.New("nothing rendered yet")

// Pick renders a debug frame and reads back the pixel at screen coordinates
// (x,y), origin top left. The hit drawable replaces the selection, or is
// toggled in it when multi is set. cb, if not nil, receives the hit and
// whether anything was hit at all.
func (r *Renderer) Pick(ctx context.Context, x, y int, multi bool, cb func(hit PickResult, ok bool)) error {
	if r.width == 0 || r.height == 0 {
		return errNoRender
	}
	err := r.Render(ctx, r.width, r.height, true, gshade.ItemHandle{})
	if err != nil {
		return err
	}
	id, err := r.readID(x, y)
	if err != nil {
		return err
	}
	hit, ok := r.lookupID(id)
	switch {
	case ok && multi:
		r.toggleSelection(hit)
	case ok:
		r.selection = append(r.selection[:0], hit)
	case !multi:
		r.selection = r.selection[:0]
	}
	if cb != nil {
		cb(hit, ok)
	}
	return nil
}

// Selection appends the currently selected drawables to dst.
func (r *Renderer) Selection(dst []PickResult) []PickResult {
	return append(dst, r.selection...)
}

// DebugIDs appends the drawables assigned an ID by the last debug render to dst.
func (r *Renderer) DebugIDs(dst []PickResult) []PickResult {
	return append(dst, r.debugMap...)
}

func (r *Renderer) toggleSelection(hit PickResult) {
	for i, s := range r.selection {
		if s.Pass == hit.Pass && s.Drawable == hit.Drawable {
			r.selection = append(r.selection[:i], r.selection[i+1:]...)
			return
		}
	}
	r.selection = append(r.selection, hit)
}

func (r *Renderer) lookupID(id uint32) (PickResult, bool) {
	if id < debugIDStart {
		return PickResult{}, false
	}
	idx := int(id - debugIDStart)
	if idx >= len(r.debugMap) {
		return PickResult{}, false
	}
	return r.debugMap[idx], true
}

// readID reads the id under screen coordinates (x,y) with origin top left.
func (r *Renderer) readID(x, y int) (uint32, error) {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return 0, fmt.Errorf("pick coordinate (%d,%d) outside %dx%d viewport", x, y, r.width, r.height)
	}
	px, err := r.dev.ReadPixel(&r.pickTarget, x, r.height-1-y)
	if err != nil {
		return 0, err
	}
	return DecodeID(px), nil
}

// DebugVertexPick finds which primitives of a drawable cover the viewport
// position uv, both coordinates in [0,1] with origin top left. With group < 0
// primitives are drawn in batches of Settings.DebugPrimitiveGroup and the
// index of the first primitive of the hit batch is returned. With group >= 0,
// the first primitive index of a batch, each primitive of that batch is drawn
// individually and the hit primitive index is returned. -1 means nothing was hit.
func (r *Renderer) DebugVertexPick(ctx context.Context, pass gshade.ItemHandle, drawable int, uv [2]float32, group int) (int, error) {
	e, d, err := r.debugDrawable(pass, drawable)
	if err != nil {
		return -1, err
	}
	n := d.Topology.PrimitiveCount(d.VertexCount)
	batch := r.cfg.Settings.DebugPrimitiveGroup
	draw := func(first, count int) DrawCall {
		dc := fullDraw(d)
		dc.First, dc.Count = d.Topology.PrimitiveRange(first, count)
		return dc
	}
	return r.batchPick(e, d, n, batch, group, uv, draw)
}

// DebugInstancePick is like DebugVertexPick but searches instances of an
// instanced drawable in batches of Settings.DebugInstanceGroup.
// It returns -1 for drawables that are not instanced.
func (r *Renderer) DebugInstancePick(ctx context.Context, pass gshade.ItemHandle, drawable int, uv [2]float32, group int) (int, error) {
	e, d, err := r.debugDrawable(pass, drawable)
	if err != nil {
		return -1, err
	} else if !d.Instanced {
		return -1, nil
	}
	n := d.Instances()
	batch := r.cfg.Settings.DebugInstanceGroup
	draw := func(first, count int) DrawCall {
		dc := fullDraw(d)
		dc.InstanceFirst = first
		dc.InstanceCount = count
		return dc
	}
	return r.batchPick(e, d, n, batch, group, uv, draw)
}

// batchPick draws n elements of d with draw. Each draw call encodes the index
// of its first element plus one so that zero keeps meaning no hit.
func (r *Renderer) batchPick(e *cacheEntry, d *gshade.Drawable, n, batch, group int, uv [2]float32, draw func(first, count int) DrawCall) (int, error) {
	if n > maxDebugID {
		return -1, fmt.Errorf("%d elements exceed pickable range", n)
	}
	start, end, step := 0, n, batch
	if group >= 0 {
		start, end, step = group, min(group+batch, n), 1
	}
	err := r.beginDebug()
	if err != nil {
		return -1, err
	}
	r.dev.UseProgram(e.art.DebugProgram)
	r.bindResources(e.handle)
	if r.cfg.Uniforms != nil {
		r.cfg.Uniforms.BindUniforms(e.handle, d, e.art.DebugProgram)
	}
	for first := start; first < end; first += step {
		count := min(step, end-first)
		r.dev.SetUniform4f(e.debugColorLoc, EncodeID(uint32(first+1)))
		r.dev.Draw(draw(first, count))
	}
	x := clampi(int(uv[0]*float32(r.width)), 0, r.width-1)
	y := clampi(int(uv[1]*float32(r.height)), 0, r.height-1)
	id, err := r.readID(x, y)
	r.dev.BindTarget(nil)
	if err != nil {
		return -1, err
	}
	return int(id) - 1, nil
}

func (r *Renderer) debugDrawable(pass gshade.ItemHandle, drawable int) (*cacheEntry, *gshade.Drawable, error) {
	if r.width == 0 || r.height == 0 {
		return nil, nil, errNoRender
	}
	item, ok := r.pl.Get(pass)
	if !ok {
		return nil, nil, fmt.Errorf("pick: stale pass handle %s", pass)
	}
	sp, ok := item.(*gshade.ShaderPass)
	if !ok {
		return nil, nil, fmt.Errorf("pick: %s is a %s, not a shader pass", r.pl.Name(pass), item.Kind())
	} else if drawable < 0 || drawable >= len(sp.Drawables) || sp.Drawables[drawable] == nil {
		return nil, nil, fmt.Errorf("pick: drawable index %d out of range", drawable)
	}
	e := r.entry(pass)
	if e == nil || e.art.DebugProgram == 0 {
		return nil, nil, fmt.Errorf("pick: %s has no debug program", r.pl.Name(pass))
	}
	return e, sp.Drawables[drawable], nil
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	} else if v > hi {
		return hi
	}
	return v
}
