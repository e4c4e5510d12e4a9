package transpile

import (
	"context"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/soypat/gshade"
)

var (
	_ gshade.PluginCompiler = WGSL{}
	_ gshade.GLSLEmitter    = WGSL{}
)

// WGSL is the built-in plugin compiler for WebGPU shading language sources.
// It compiles in-process and emits GLSL directly instead of going through
// the external cross-compiler.
type WGSL struct{}

func (WGSL) Extensions() []string { return []string{".wgsl"} }

func (WGSL) CompileToSPIRV(ctx context.Context, req gshade.PluginRequest) ([]uint32, error) {
	module, err := lowerWGSL(req)
	if err != nil {
		return nil, err
	}
	b, err := spirv.NewBackend(spirv.DefaultOptions()).Compile(module)
	if err != nil {
		return nil, fmt.Errorf("wgsl to SPIR-V: %w", err)
	}
	return Words(b)
}

func (WGSL) EmitGLSL(ctx context.Context, req gshade.PluginRequest) (string, error) {
	module, err := lowerWGSL(req)
	if err != nil {
		return "", err
	}
	opts := glsl.DefaultOptions()
	opts.EntryPoint = req.Entry
	if req.Stage == gshade.StageCompute {
		opts.LangVersion = glsl.Version430
	}
	code, _, err := glsl.Compile(module, opts)
	if err != nil {
		return "", err
	}
	return code, nil
}

func lowerWGSL(req gshade.PluginRequest) (*ir.Module, error) {
	ast, err := naga.Parse(req.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gshade.ErrParse, err)
	}
	module, err := naga.Lower(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gshade.ErrParse, err)
	}
	for _, ep := range module.EntryPoints {
		if ep.Name != req.Entry {
			continue
		}
		var stageOK bool
		switch req.Stage {
		case gshade.StageVertex:
			stageOK = ep.Stage == ir.StageVertex
		case gshade.StageCompute:
			stageOK = ep.Stage == ir.StageCompute
		default:
			stageOK = ep.Stage == ir.StageFragment
		}
		if !stageOK {
			return nil, fmt.Errorf("entry point %q is not a %s shader", req.Entry, req.Stage)
		}
		return module, nil
	}
	return nil, fmt.Errorf("entry point %q not found", req.Entry)
}
