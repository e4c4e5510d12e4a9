package glrender

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/gshade"
)

// Renderer owns the compiled programs of a pipeline and draws it.
// Except for [Renderer.RecompileFromSource] and [Renderer.QueueRecompile],
// methods must be called from the goroutine that owns the graphics context.
type Renderer struct {
	cfg Config
	dev Device
	pl  *gshade.Pipeline
	log *slog.Logger
	now func() time.Time

	entries   []*cacheEntry
	diffed    bool
	lastCount int
	lastDiff  time.Time
	stats     Stats
	liveBuf   []gshade.ItemHandle

	// Shaders shared by all entries.
	debugPS      uint32
	fullscreenVS uint32

	width, height int
	pickTarget    Target
	debugID       uint32
	debugMap      []PickResult
	selection     []PickResult

	mu      sync.Mutex
	pending map[string]*pendingSource
}

type cacheEntry struct {
	handle gshade.ItemHandle
	art    Artifact
	target Target
	// debugColorLoc is the location of the debug color uniform in art.DebugProgram.
	debugColorLoc int32
	// overrides holds in-memory source per stage set by RecompileFromSource.
	overrides [gshade.StageCount]string
}

// New returns a Renderer for pl. The pipeline is read during Cache and Render
// and must not be modified concurrently with them.
func New(cfg Config, pl *gshade.Pipeline) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	} else if pl == nil {
		return nil, fmt.Errorf("nil pipeline")
	}
	r := &Renderer{
		cfg:     cfg,
		dev:     cfg.Device,
		pl:      pl,
		log:     gshade.LoggerOrNop(cfg.Log),
		now:     cfg.Now,
		pending: make(map[string]*pendingSource),
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Stats returns the cache operation counters.
func (r *Renderer) Stats() Stats { return r.stats }

// Cache brings the cache up to date with the pipeline. When the number of
// items is unchanged since the last diff the pipeline is only rescanned once
// the debounce interval has elapsed.
func (r *Renderer) Cache(ctx context.Context) {
	n := r.pl.Len()
	if r.diffed && n == r.lastCount && r.now().Sub(r.lastDiff) < r.cfg.Settings.DebounceDuration() {
		return
	}
	r.diff(ctx)
}

// diff compiles added items, frees removed items and relocates moved items.
func (r *Renderer) diff(ctx context.Context) {
	r.stats.Diffs++
	live := r.pl.Items(r.liveBuf[:0])
	r.liveBuf = live
	livePos := make(map[gshade.ItemHandle]int, len(live))
	for i, h := range live {
		livePos[h] = i
	}
	cached := make(map[gshade.ItemHandle]*cacheEntry, len(r.entries))
	for i, e := range r.entries {
		pos, ok := livePos[e.handle]
		if !ok {
			r.log.Debug("free removed item", slog.String("handle", e.handle.String()))
			r.free(e)
			continue
		}
		if pos != i {
			r.stats.Moves++
		}
		cached[e.handle] = e
	}
	entries := make([]*cacheEntry, 0, len(live))
	for _, h := range live {
		e, ok := cached[h]
		if !ok {
			e = &cacheEntry{handle: h, debugColorLoc: -1}
			r.compileItem(ctx, e, allStages)
		}
		entries = append(entries, e)
	}
	r.entries = entries
	r.lastCount = len(live)
	r.lastDiff = r.now()
	r.diffed = true
}

// FlushCache frees every cache entry. The next Cache recompiles the whole pipeline.
func (r *Renderer) FlushCache() {
	for _, e := range r.entries {
		r.free(e)
	}
	r.entries = nil
	r.diffed = false
	r.debugMap = r.debugMap[:0]
	r.selection = r.selection[:0]
	if !r.pickTarget.IsZero() {
		r.dev.DeleteTarget(&r.pickTarget)
		r.pickTarget = Target{}
	}
}

// Close frees all GPU objects owned by the renderer.
func (r *Renderer) Close() {
	r.FlushCache()
	if r.debugPS != 0 {
		r.dev.DeleteShader(r.debugPS)
		r.debugPS = 0
	}
	if r.fullscreenVS != 0 {
		r.dev.DeleteShader(r.fullscreenVS)
		r.fullscreenVS = 0
	}
}

// Artifact returns the compiled artifact of the item referenced by h.
func (r *Renderer) Artifact(h gshade.ItemHandle) (Artifact, bool) {
	e := r.entry(h)
	if e == nil {
		return Artifact{}, false
	}
	return e.art, true
}

// Program returns the release program of the first item named name, or 0 if
// the item does not exist or failed to compile.
func (r *Renderer) Program(name string) uint32 {
	h, ok := r.pl.Find(name)
	if !ok {
		return 0
	}
	art, _ := r.Artifact(h)
	return art.Program
}

// Output returns the render target a ShaderPass last drew into.
func (r *Renderer) Output(h gshade.ItemHandle) (Target, bool) {
	e := r.entry(h)
	if e == nil || e.target.IsZero() {
		return Target{}, false
	}
	return e.target, true
}

func (r *Renderer) entry(h gshade.ItemHandle) *cacheEntry {
	for _, e := range r.entries {
		if e.handle == h {
			return e
		}
	}
	return nil
}

// free releases every GPU object of e.
func (r *Renderer) free(e *cacheEntry) {
	r.stats.Frees++
	r.deletePrograms(e)
	for st := range e.art.Shaders {
		r.deleteShader(e, gshade.Stage(st))
	}
	if !e.target.IsZero() {
		r.dev.DeleteTarget(&e.target)
	}
	e.target = Target{}
	e.art = Artifact{}
}

func (r *Renderer) deletePrograms(e *cacheEntry) {
	if e.art.Program != 0 {
		r.dev.DeleteProgram(e.art.Program)
		e.art.Program = 0
	}
	if e.art.DebugProgram != 0 {
		r.dev.DeleteProgram(e.art.DebugProgram)
		e.art.DebugProgram = 0
	}
	e.debugColorLoc = -1
}

func (r *Renderer) deleteShader(e *cacheEntry, st gshade.Stage) {
	if e.art.Shaders[st] != 0 {
		r.dev.DeleteShader(e.art.Shaders[st])
		e.art.Shaders[st] = 0
	}
	e.art.SPIRV[st] = nil
	e.art.GLSL[st] = ""
}
