// Package transpile compiles shader source units to SPIR-V and cross-compiles
// SPIR-V back into GLSL 330 ready for the GL driver. Failures are reported as
// diagnostics through the configured sink and never returned as errors.
package transpile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glbuild"
)

// Config configures a [Transcompiler].
type Config struct {
	Settings gshade.Settings
	Source   gshade.SourceProvider
	Sink     gshade.DiagnosticSink
	// Plugins resolves compilers for [gshade.LangPlugin] units. May be nil.
	Plugins *gshade.PluginRegistry
	// Runner runs external tools. Defaults to [ExecRunner].
	Runner Runner
	Log    *slog.Logger
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.Source == nil {
		errs = append(errs, errors.New("nil source provider"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("nil diagnostic sink"))
	}
	if err := cfg.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Transcompiler turns shader source units into GLSL 330.
type Transcompiler struct {
	cfg    Config
	runner Runner
	log    *slog.Logger
}

// New returns a Transcompiler ready for use.
func New(cfg Config) (*Transcompiler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tc := &Transcompiler{
		cfg:    cfg,
		runner: cfg.Runner,
		log:    gshade.LoggerOrNop(cfg.Log),
	}
	if tc.runner == nil {
		tc.runner = ExecRunner{}
	}
	return tc, nil
}

// Request is a single shader unit compilation.
type Request struct {
	// Group is the pipeline item name diagnostics are attributed to.
	Group string
	Unit  *gshade.ShaderSourceUnit
	// Macros are the pass macros. The unit's own macros are applied after them.
	Macros       []gshade.Macro
	UsesGeometry bool
	// Text replaces the unit's source when not empty.
	Text string
}

// Result of compiling a unit.
type Result struct {
	// Source is the preprocessed text handed to the front-end.
	Source string
	// SPIRV is nil for GLSL units, which skip the SPIR-V step.
	SPIRV []uint32
	GLSL  string
	// LineBias is the number of lines preprocessing added before reported lines.
	LineBias int
	// Transcompiled is set when GLSL was generated, so driver line numbers
	// do not refer to the user's source.
	Transcompiled bool
}

// Compile preprocesses the unit and, for languages other than GLSL, compiles
// it to SPIR-V. GLSL units return their preprocessed text in Result.GLSL.
// Failures add diagnostics to the sink and return ok=false.
func (tc *Transcompiler) Compile(ctx context.Context, req Request) (res Result, ok bool) {
	unit := req.Unit
	text, bias, ok := tc.preprocess(req)
	if !ok {
		return res, false
	}
	res.Source = text
	res.LineBias = bias
	macros := gshade.ActiveMacros(nil, req.Macros, unit.Macros)
	switch unit.Language {
	case gshade.LangGLSL:
		res.GLSL = text
		return res, true

	case gshade.LangHLSL, gshade.LangVulkanGLSL:
		words, out, err := tc.frontEnd(ctx, text, unit, macros)
		if err != nil {
			tc.fail(req, out, bias, err)
			return res, false
		}
		res.SPIRV = words
		return res, true

	case gshade.LangPlugin:
		pc, found := tc.cfg.Plugins.Lookup(unit.Path)
		if !found {
			tc.report(req, gshade.SeverityError, fmt.Sprintf("no plugin compiler for %q", unit.Path), -1)
			return res, false
		}
		words, err := pc.CompileToSPIRV(ctx, tc.pluginRequest(req, text, macros))
		if err != nil {
			tc.fail(req, err.Error(), bias, err)
			return res, false
		}
		res.SPIRV = words
		return res, true
	}
	tc.report(req, gshade.SeverityError, "unknown shader language "+unit.Language.String(), -1)
	return res, false
}

// ToGLSL cross-compiles SPIR-V to GLSL 330, renaming stage linkage to the
// positional output convention, collapsing texture/sampler pairs into
// combined samplers and flattening uniform blocks into loose uniforms.
func (tc *Transcompiler) ToGLSL(ctx context.Context, spirv []uint32, stage gshade.Stage, usesGeometry bool) (string, error) {
	return tc.toGLSL(ctx, spirv, stage, usesGeometry, "")
}

func (tc *Transcompiler) toGLSL(ctx context.Context, spirv []uint32, stage gshade.Stage, usesGeometry bool, entry string) (string, error) {
	if len(spirv) == 0 {
		return "", gshade.ErrEmptySource
	}
	glsl, err := tc.crossCompile(ctx, spirv, stage, entry)
	if err != nil {
		return "", err
	}
	refl, err := Reflect(spirv)
	if err != nil {
		return "", err
	}
	glsl = glbuild.RenameCombinedSamplers(glsl, refl.Textures)
	return postProcess(glsl, stage, usesGeometry, entry)
}

func postProcess(glsl string, stage gshade.Stage, usesGeometry bool, entry string) (string, error) {
	glsl = glbuild.FlattenUniformBlocks(glsl)
	glsl = glbuild.RenameLinkage(glsl, stage, usesGeometry)
	glsl = glbuild.RenameEntry(glsl, entry)
	if strings.TrimSpace(glsl) == "" {
		return "", gshade.ErrEmptySource
	}
	return glsl, nil
}

// Build runs [Transcompiler.Compile] and produces the final GLSL for the unit.
func (tc *Transcompiler) Build(ctx context.Context, req Request) (Result, bool) {
	res, ok := tc.Compile(ctx, req)
	if !ok {
		return res, false
	}
	unit := req.Unit
	stage := unit.Stage
	var err error
	switch unit.Language {
	case gshade.LangGLSL:
		res.GLSL = glbuild.RenameEntry(res.GLSL, unit.EntryOrMain())
		if strings.TrimSpace(res.GLSL) == "" {
			err = gshade.ErrEmptySource
		}
	case gshade.LangPlugin:
		res.GLSL, err = tc.pluginGLSL(ctx, req, res)
	default:
		entry := unit.EntryOrMain()
		if unit.Language == gshade.LangVulkanGLSL {
			entry = "main"
		}
		res.GLSL, err = tc.toGLSL(ctx, res.SPIRV, stage, req.UsesGeometry, entry)
	}
	res.Transcompiled = unit.Language.NeedsTranscompile()
	if err != nil {
		tc.report(req, gshade.SeverityError, err.Error(), -1)
		tc.log.Warn("generating GLSL", slog.String("group", req.Group), slog.String("stage", stage.String()), slog.String("err", err.Error()))
		return res, false
	}
	return res, true
}

func (tc *Transcompiler) pluginGLSL(ctx context.Context, req Request, res Result) (glsl string, err error) {
	pc, _ := tc.cfg.Plugins.Lookup(req.Unit.Path)
	if emitter, ok := pc.(gshade.GLSLEmitter); ok {
		macros := gshade.ActiveMacros(nil, req.Macros, req.Unit.Macros)
		glsl, err = emitter.EmitGLSL(ctx, tc.pluginRequest(req, res.Source, macros))
		if err == nil {
			glsl, err = postProcess(glsl, req.Unit.Stage, req.UsesGeometry, req.Unit.EntryOrMain())
		}
	} else {
		glsl, err = tc.toGLSL(ctx, res.SPIRV, req.Unit.Stage, req.UsesGeometry, req.Unit.EntryOrMain())
	}
	if err != nil {
		return "", err
	}
	if proc, ok := pc.(gshade.GLSLProcessor); ok {
		glsl, err = proc.ProcessGeneratedGLSL(req.Unit.Stage, glsl)
	}
	return glsl, err
}

func (tc *Transcompiler) pluginRequest(req Request, text string, macros []gshade.Macro) gshade.PluginRequest {
	return gshade.PluginRequest{
		Path:   req.Unit.Path,
		Source: text,
		Stage:  req.Unit.Stage,
		Entry:  req.Unit.EntryOrMain(),
		Macros: macros,
	}
}

// preprocess loads the unit's text, expands includes, injects macros and
// runs the unsupported construct prescan.
func (tc *Transcompiler) preprocess(req Request) (text string, bias int, ok bool) {
	unit := req.Unit
	text = req.Text
	if text == "" {
		text = unit.Inline
	}
	if text == "" {
		if unit.Path == "" {
			tc.report(req, gshade.SeverityError, gshade.ErrEmptySource.Error(), -1)
			return "", 0, false
		}
		var err error
		text, err = tc.cfg.Source.LoadProjectFile(unit.Path)
		if err != nil {
			tc.report(req, gshade.SeverityError, err.Error(), -1)
			return "", 0, false
		}
	}
	resolver := glbuild.IncludeResolver{
		Source: tc.cfg.Source,
		Sink:   tc.cfg.Sink,
		Group:  req.Group,
		Stage:  unit.Stage,
		Log:    tc.log,
	}
	var stack []string
	if unit.Path != "" {
		stack = append(stack, unit.Path)
	}
	text = resolver.Resolve(text, stack, &bias)
	if unit.Language != gshade.LangHLSL && unit.Language != gshade.LangPlugin {
		var inserted int
		text, inserted = glbuild.InjectMacros(text, gshade.ActiveMacros(nil, req.Macros, unit.Macros))
		bias += inserted
	}
	err := glbuild.Prescan(text, unit.Language)
	if err != nil {
		line := -1
		var unsupported *glbuild.UnsupportedError
		if errors.As(err, &unsupported) {
			line = mapLine(unsupported.Line, bias)
		}
		tc.report(req, gshade.SeverityError, err.Error(), line)
		return "", 0, false
	}
	return text, bias, true
}

// fail reports tool output as diagnostics, falling back to a single generic
// diagnostic when the output contains no recognized message.
func (tc *Transcompiler) fail(req Request, toolOutput string, bias int, err error) {
	diags := ParseDiagnostics(toolOutput, req.Group, req.Unit.Stage, bias)
	for _, d := range diags {
		tc.cfg.Sink.Add(d.Severity, d.Group, d.Text, d.Line, d.Stage)
	}
	tc.log.Debug("compile failed", slog.String("group", req.Group), slog.String("stage", req.Unit.Stage.String()), slog.Int("diagnostics", len(diags)), slog.String("err", err.Error()))
	if hasError(diags) {
		return
	}
	msg := firstLine(toolOutput)
	if msg == "" {
		msg = err.Error()
	}
	tc.report(req, gshade.SeverityError, msg, -1)
}

func (tc *Transcompiler) report(req Request, sev gshade.Severity, text string, line int) {
	tc.cfg.Sink.Add(sev, req.Group, text, line, req.Unit.Stage)
}

func hasError(diags []gshade.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == gshade.SeverityError {
			return true
		}
	}
	return false
}
