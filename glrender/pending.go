package glrender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soypat/gshade"
)

// pendingSource is a recompile request recorded off the render goroutine.
type pendingSource struct {
	vs, ps, gs string
	// fromDisk discards in-memory source and reloads every stage.
	fromDisk bool
	// reset discards earlier in-memory source before applying vs, ps and gs.
	reset bool
}

// Recompile recompiles every shader unit of the named item from the source
// provider, discarding in-memory source set by RecompileFromSource.
// It returns an error only if no item has that name; compile failures are
// reported as diagnostics.
func (r *Renderer) Recompile(ctx context.Context, name string) error {
	h, ok := r.pl.Find(name)
	if !ok {
		return fmt.Errorf("pipeline item %q not found", name)
	}
	e := r.entry(h)
	if e == nil {
		// Not cached yet, the diff compiles it.
		r.diff(ctx)
		return nil
	}
	e.overrides = [gshade.StageCount]string{}
	r.compileItem(ctx, e, allStages)
	return nil
}

// RecompileFromSource records in-memory source for the named item. Empty
// texts leave their stage untouched. The request is applied by the next
// Render or ApplyPending call, so it is safe to call from any goroutine.
// Compute passes take their source from vsText and audio passes from psText.
// Of a QueueRecompile and a RecompileFromSource for the same item the later
// one wins; stages without text are then reloaded from the source provider.
func (r *Renderer) RecompileFromSource(name, vsText, psText, gsText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.pending[name]
	if p == nil {
		p = &pendingSource{}
		r.pending[name] = p
	}
	if p.fromDisk {
		p.fromDisk = false
		p.reset = true
	}
	if vsText != "" {
		p.vs = vsText
	}
	if psText != "" {
		p.ps = psText
	}
	if gsText != "" {
		p.gs = gsText
	}
}

// QueueRecompile records a request to recompile the named item from the
// source provider. Like RecompileFromSource it is safe to call from any goroutine.
func (r *Renderer) QueueRecompile(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[name] = &pendingSource{fromDisk: true}
}

// ApplyPending applies the requests recorded by RecompileFromSource and
// QueueRecompile. Requests for unknown items are dropped.
func (r *Renderer) ApplyPending(ctx context.Context) {
	r.mu.Lock()
	if len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	pending := r.pending
	r.pending = make(map[string]*pendingSource)
	r.mu.Unlock()

	for name, p := range pending {
		var err error
		if p.fromDisk {
			err = r.Recompile(ctx, name)
		} else {
			err = r.recompileFromSource(ctx, name, p)
		}
		if err != nil {
			r.log.Warn("dropping pending recompile", slog.String("item", name), slog.String("err", err.Error()))
		}
	}
}

func (r *Renderer) recompileFromSource(ctx context.Context, name string, p *pendingSource) error {
	h, ok := r.pl.Find(name)
	if !ok {
		return fmt.Errorf("pipeline item %q not found", name)
	}
	e := r.entry(h)
	if e == nil {
		r.diff(ctx)
		if e = r.entry(h); e == nil {
			return fmt.Errorf("pipeline item %q not cached", name)
		}
	}
	item, _ := r.pl.Get(h)
	var mask stageMask
	if p.reset {
		e.overrides = [gshade.StageCount]string{}
		mask = allStages
	}
	set := func(st gshade.Stage, text string) {
		if text != "" {
			e.overrides[st] = text
			mask |= 1 << st
		}
	}
	switch item.Kind() {
	case gshade.KindShaderPass:
		set(gshade.StageVertex, p.vs)
		set(gshade.StagePixel, p.ps)
		set(gshade.StageGeometry, p.gs)
	case gshade.KindComputePass:
		set(gshade.StageCompute, p.vs)
	case gshade.KindAudioPass:
		set(gshade.StageAudio, p.ps)
	}
	if mask == 0 {
		return nil
	}
	r.compileItem(ctx, e, mask)
	return nil
}
