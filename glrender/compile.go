package glrender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glbuild"
	"github.com/soypat/gshade/transpile"
)

// stageMask selects the stages of an item to compile.
type stageMask uint8

const allStages stageMask = 1<<gshade.StageCount - 1

func (m stageMask) has(st gshade.Stage) bool { return m&(1<<st) != 0 }

// stagedUnit is a source unit with the stage its role in the item dictates.
type stagedUnit struct {
	stage gshade.Stage
	unit  *gshade.ShaderSourceUnit
}

func itemUnits(item gshade.Item) []stagedUnit {
	switch it := item.(type) {
	case *gshade.ShaderPass:
		units := []stagedUnit{{gshade.StageVertex, &it.VS}, {gshade.StagePixel, &it.PS}}
		if it.UsesGeometry() {
			units = append(units, stagedUnit{gshade.StageGeometry, it.GS})
		}
		return units
	case *gshade.ComputePass:
		return []stagedUnit{{gshade.StageCompute, &it.CS}}
	case *gshade.AudioPass:
		return []stagedUnit{{gshade.StageAudio, &it.PS}}
	}
	return nil
}

// compileItem recompiles the stages of e selected by mask, plus any stage
// without a compiled shader, and relinks its programs. Previous programs are
// discarded before linking so a failure leaves the item with program 0.
func (r *Renderer) compileItem(ctx context.Context, e *cacheEntry, mask stageMask) {
	r.stats.Compiles++
	item, ok := r.pl.Get(e.handle)
	if !ok {
		return
	}
	name := r.pl.Name(e.handle)
	sink := r.cfg.Sink
	sink.SetCurrentItem(name, item.Kind())
	sink.ClearGroup(name)
	r.deletePrograms(e)

	usesGS := false
	if sp, ok := item.(*gshade.ShaderPass); ok {
		usesGS = sp.UsesGeometry()
	}
	units := itemUnits(item)
	failed := false
	for _, su := range units {
		st := su.stage
		if !mask.has(st) && e.art.Shaders[st] != 0 {
			continue
		}
		r.deleteShader(e, st)
		unit := *su.unit
		unit.Stage = st
		res, ok := r.cfg.Compiler.Build(ctx, transpile.Request{
			Group:        name,
			Unit:         &unit,
			Macros:       item.PassMacros(),
			UsesGeometry: usesGS,
			Text:         e.overrides[st],
		})
		if !ok {
			failed = true
			continue
		}
		e.art.SPIRV[st] = res.SPIRV
		e.art.GLSL[st] = res.GLSL
		shader, infoLog, err := r.dev.CompileShader(st, res.GLSL)
		if err != nil {
			r.reportDriverLog(name, st, infoLog, res, err)
			failed = true
			continue
		}
		e.art.Shaders[st] = shader
	}
	// Drop shaders of stages the item no longer has, such as a removed geometry stage.
	for st := range e.art.Shaders {
		if !hasStage(units, gshade.Stage(st)) {
			r.deleteShader(e, gshade.Stage(st))
		}
	}
	if failed {
		r.log.Debug("item compile failed", slog.String("item", name))
		return
	}
	r.link(e, name, item)
}

func hasStage(units []stagedUnit, st gshade.Stage) bool {
	for _, su := range units {
		if su.stage == st {
			return true
		}
	}
	return false
}

func (r *Renderer) link(e *cacheEntry, name string, item gshade.Item) {
	sh := &e.art.Shaders
	switch item.(type) {
	case *gshade.ShaderPass:
		stages := []uint32{sh[gshade.StageVertex]}
		if sh[gshade.StageGeometry] != 0 {
			stages = append(stages, sh[gshade.StageGeometry])
		}
		e.art.Program = r.linkProgram(name, gshade.StagePixel, append(stages, sh[gshade.StagePixel])...)
		if e.art.Program == 0 {
			return
		}
		debugPS := r.sharedShader(&r.debugPS, gshade.StagePixel, glbuild.DebugPixelSource())
		if debugPS == 0 {
			return
		}
		e.art.DebugProgram = r.linkProgram(name, gshade.StagePixel, append(stages, debugPS)...)
		if e.art.DebugProgram != 0 {
			e.debugColorLoc = r.dev.UniformLocation(e.art.DebugProgram, glbuild.DebugColorUniform)
		}

	case *gshade.ComputePass:
		e.art.Program = r.linkProgram(name, gshade.StageCompute, sh[gshade.StageCompute])

	case *gshade.AudioPass:
		vs := r.sharedShader(&r.fullscreenVS, gshade.StageVertex, glbuild.FullscreenVertexSource())
		if vs == 0 {
			r.cfg.Sink.Add(gshade.SeverityError, name, "built-in fullscreen vertex stage failed to compile", -1, gshade.StageAudio)
			return
		}
		e.art.Program = r.linkProgram(name, gshade.StageAudio, vs, sh[gshade.StageAudio])
	}
}

func (r *Renderer) linkProgram(name string, stage gshade.Stage, shaders ...uint32) uint32 {
	prog, infoLog, err := r.dev.LinkProgram(shaders...)
	if err == nil {
		return prog
	}
	msg := firstLine(infoLog)
	if msg == "" {
		msg = err.Error()
	}
	r.cfg.Sink.Add(gshade.SeverityError, name, fmt.Sprintf("%s: %s", gshade.ErrLink, msg), -1, stage)
	return 0
}

// sharedShader compiles a built-in shader once and caches it in *dst.
func (r *Renderer) sharedShader(dst *uint32, stage gshade.Stage, src string) uint32 {
	if *dst != 0 {
		return *dst
	}
	shader, infoLog, err := r.dev.CompileShader(stage, src)
	if err != nil {
		r.log.Warn("built-in shader failed", slog.String("stage", stage.String()), slog.String("log", infoLog), slog.String("err", err.Error()))
		return 0
	}
	*dst = shader
	return shader
}

// reportDriverLog turns the driver's compile output into diagnostics. Lines of
// generated GLSL do not correspond to the user's source and are reported as unknown.
func (r *Renderer) reportDriverLog(group string, stage gshade.Stage, infoLog string, res transpile.Result, err error) {
	diags := transpile.ParseDiagnostics(infoLog, group, stage, res.LineBias)
	hasErr := false
	for _, d := range diags {
		if res.Transcompiled {
			d.Line = -1
		}
		hasErr = hasErr || d.Severity == gshade.SeverityError
		r.cfg.Sink.Add(d.Severity, d.Group, d.Text, d.Line, d.Stage)
	}
	if hasErr {
		return
	}
	msg := firstLine(infoLog)
	if msg == "" {
		msg = err.Error()
	}
	r.cfg.Sink.Add(gshade.SeverityError, group, msg, -1, stage)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
