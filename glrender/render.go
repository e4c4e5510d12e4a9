package glrender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/soypat/gshade"
)

// debugIDStart is the first DebugID of a debug render. ID 0 means nothing was hit.
const debugIDStart = 1

// Render applies pending recompiles, runs the cache diff and draws the
// pipeline in order. Items that failed to compile are skipped. When breakItem
// is not zero rendering stops before that item.
//
// With isDebug set every visible drawable is drawn with its debug program into
// the pick target, its DebugID encoded in the pixel color; compute passes are
// not dispatched.
func (r *Renderer) Render(ctx context.Context, width, height int, isDebug bool, breakItem gshade.ItemHandle) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid render size %dx%d", width, height)
	}
	r.width, r.height = width, height
	r.ApplyPending(ctx)
	r.Cache(ctx)
	if isDebug {
		if err := r.beginDebug(); err != nil {
			return err
		}
	}
	var errs []error
	for _, e := range r.entries {
		if !breakItem.IsZero() && e.handle == breakItem {
			break
		}
		item, ok := r.pl.Get(e.handle)
		if !ok {
			continue // Removed since the last diff.
		}
		switch it := item.(type) {
		case *gshade.ShaderPass:
			if isDebug {
				r.drawDebug(e, it)
			} else if err := r.drawPass(e, it); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", r.pl.Name(e.handle), err))
			}
		case *gshade.ComputePass:
			if !isDebug && e.art.Program != 0 {
				r.dev.UseProgram(e.art.Program)
				r.bindResources(e.handle)
				wg := it.WorkGroups
				r.dev.Dispatch(max(wg[0], 1), max(wg[1], 1), max(wg[2], 1))
			}
		case *gshade.AudioPass:
			// Audio programs are run by the host's audio engine.
		}
	}
	r.dev.BindTarget(nil)
	return errors.Join(errs...)
}

func (r *Renderer) drawPass(e *cacheEntry, sp *gshade.ShaderPass) error {
	if e.art.Program == 0 {
		return nil
	}
	samples := sp.Target.Samples
	if samples == 0 {
		samples = r.cfg.Settings.Samples
	}
	err := r.ensureTarget(&e.target, samples)
	if err != nil {
		return err
	}
	r.dev.BindTarget(&e.target)
	if !sp.Target.NoClear {
		r.dev.Clear(sp.Target.ClearColor)
	}
	r.dev.UseProgram(e.art.Program)
	r.bindResources(e.handle)
	for _, d := range sp.Drawables {
		if d == nil || d.Hidden {
			continue
		}
		if r.cfg.Uniforms != nil {
			r.cfg.Uniforms.BindUniforms(e.handle, d, e.art.Program)
		}
		r.dev.Draw(fullDraw(d))
	}
	if e.target.Multisampled() {
		r.dev.ResolveTarget(&e.target)
	}
	return nil
}

// drawDebug draws the visible drawables of sp with consecutive DebugIDs.
func (r *Renderer) drawDebug(e *cacheEntry, sp *gshade.ShaderPass) {
	if e.art.DebugProgram == 0 {
		return
	}
	r.dev.UseProgram(e.art.DebugProgram)
	r.bindResources(e.handle)
	for i, d := range sp.Drawables {
		if d == nil || d.Hidden {
			continue
		}
		if r.debugID > maxDebugID {
			r.log.Warn("debug ID range exhausted, remaining drawables are not pickable",
				slog.String("item", r.pl.Name(e.handle)), slog.Int("drawable", i))
			return
		}
		id := r.debugID
		r.debugID++
		r.debugMap = append(r.debugMap, PickResult{Pass: e.handle, Drawable: i, ID: id})
		if r.cfg.Uniforms != nil {
			r.cfg.Uniforms.BindUniforms(e.handle, d, e.art.DebugProgram)
		}
		r.dev.SetUniform4f(e.debugColorLoc, EncodeID(id))
		r.dev.Draw(fullDraw(d))
	}
}

// beginDebug resets the DebugID counter and binds a cleared pick target.
func (r *Renderer) beginDebug() error {
	r.debugID = debugIDStart
	r.debugMap = r.debugMap[:0]
	err := r.ensureTarget(&r.pickTarget, 1)
	if err != nil {
		return fmt.Errorf("pick target: %w", err)
	}
	r.dev.BindTarget(&r.pickTarget)
	r.dev.Clear([4]float32{})
	return nil
}

// ensureTarget recreates t when the render size or sample count changed.
func (r *Renderer) ensureTarget(t *Target, samples int) error {
	if samples < 1 {
		samples = 1
	}
	if !t.IsZero() && t.Width == r.width && t.Height == r.height && t.Samples == samples {
		return nil
	}
	if !t.IsZero() {
		r.dev.DeleteTarget(t)
	}
	nt, err := r.dev.CreateTarget(r.width, r.height, samples)
	if err != nil {
		*t = Target{}
		return err
	}
	*t = nt
	return nil
}

func (r *Renderer) bindResources(pass gshade.ItemHandle) {
	if r.cfg.Bindings == nil {
		return
	}
	r.dev.BindResources(r.cfg.Bindings.GetBindList(pass), r.cfg.Bindings.GetUniformBindList(pass))
}

func fullDraw(d *gshade.Drawable) DrawCall {
	return DrawCall{
		VAO:           d.VAO,
		Topology:      d.Topology,
		First:         0,
		Count:         d.VertexCount,
		Indexed:       d.Indexed,
		InstanceCount: d.Instances(),
	}
}
