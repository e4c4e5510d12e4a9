package gshade

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// PluginCompiler compiles a plugin-defined shading language to SPIR-V words.
// Optional capabilities are discovered by asserting the compiler against
// [GLSLEmitter] and [GLSLProcessor].
type PluginCompiler interface {
	// Extensions lists the file extensions handled, including the leading dot.
	Extensions() []string
	CompileToSPIRV(ctx context.Context, req PluginRequest) ([]uint32, error)
}

// PluginRequest is the input to a plugin compilation.
type PluginRequest struct {
	Path   string
	Source string
	Stage  Stage
	Entry  string
	Macros []Macro
}

// GLSLEmitter is implemented by plugins that can emit desktop GLSL directly,
// bypassing the SPIR-V cross-compiler.
type GLSLEmitter interface {
	EmitGLSL(ctx context.Context, req PluginRequest) (string, error)
}

// GLSLProcessor is implemented by plugins that post-process the GLSL generated
// for their units.
type GLSLProcessor interface {
	ProcessGeneratedGLSL(stage Stage, glsl string) (string, error)
}

// PluginRegistry resolves plugin compilers by source file extension.
type PluginRegistry struct {
	mu    sync.RWMutex
	byExt map[string]PluginCompiler
}

// Register adds pc for each of its extensions, replacing previous registrations.
func (r *PluginRegistry) Register(pc PluginCompiler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byExt == nil {
		r.byExt = make(map[string]PluginCompiler)
	}
	for _, ext := range pc.Extensions() {
		r.byExt[strings.ToLower(ext)] = pc
	}
}

// Lookup returns the compiler registered for path's extension.
func (r *PluginRegistry) Lookup(path string) (PluginCompiler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return pc, ok
}
