// Package glrender keeps the GPU programs of a [gshade.Pipeline] current and
// draws them. Every pipeline item owns a cache entry holding its compiled
// shaders, its release and debug programs and its render target. The cache is
// diffed against the live pipeline once per frame: items are identified by
// handle, so reordering never recompiles.
//
// The package talks to the GPU only through [Device], which keeps the cache
// logic testable without a graphics context.
package glrender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/gshade"
	"github.com/soypat/gshade/transpile"
)

// Device is the subset of a graphics API the renderer needs. All methods are
// called from the goroutine that owns the graphics context.
type Device interface {
	// CompileShader compiles GLSL source for stage. On failure shader is 0 and
	// infoLog holds the driver's compiler output.
	CompileShader(stage gshade.Stage, src string) (shader uint32, infoLog string, err error)
	// LinkProgram links shaders into a program. On failure program is 0.
	LinkProgram(shaders ...uint32) (program uint32, infoLog string, err error)
	DeleteShader(shader uint32)
	DeleteProgram(program uint32)
	// UniformLocation returns -1 if name is not an active uniform of program.
	UniformLocation(program uint32, name string) int32

	CreateTarget(width, height, samples int) (Target, error)
	DeleteTarget(t *Target)
	// BindTarget binds t for drawing. A nil t binds the default framebuffer.
	BindTarget(t *Target)
	// ResolveTarget copies the multisampled twin of t into its single sampled color attachment.
	ResolveTarget(t *Target)
	Clear(color [4]float32)

	UseProgram(program uint32)
	SetUniform4f(location int32, v [4]float32)
	// BindResources binds textures to consecutive texture units and uniform
	// buffers to consecutive binding points starting at zero.
	BindResources(textures, uniformBuffers []uint32)
	Draw(dc DrawCall)
	Dispatch(x, y, z uint32)
	// ReadPixel blocks until the color of pixel (x,y) of t is available.
	// The origin is the bottom left corner.
	ReadPixel(t *Target, x, y int) ([4]byte, error)
}

// Target is a framebuffer with color and depth attachments and an optional
// multisampled twin used for drawing.
type Target struct {
	FBO, Color, Depth       uint32
	MSFBO, MSColor, MSDepth uint32
	Width, Height           int
	Samples                 int
}

// IsZero reports whether t holds no GPU objects.
func (t *Target) IsZero() bool { return t.FBO == 0 && t.MSFBO == 0 }

// Multisampled reports whether drawing happens in the multisampled twin.
func (t *Target) Multisampled() bool { return t.Samples > 1 && t.MSFBO != 0 }

// DrawCall describes a single draw. First and Count are in vertices, or in
// indices when Indexed is set.
type DrawCall struct {
	VAO           uint32
	Topology      gshade.Topology
	First, Count  int
	Indexed       bool
	InstanceFirst int
	InstanceCount int
}

// Compiler produces final GLSL for a shader unit. [*transpile.Transcompiler]
// implements it. Failures are reported to the diagnostic sink.
type Compiler interface {
	Build(ctx context.Context, req transpile.Request) (transpile.Result, bool)
}

// UniformBinder sets per-draw uniforms such as transforms and time on the
// bound program. It stands in for the host's system variable manager.
type UniformBinder interface {
	BindUniforms(pass gshade.ItemHandle, d *gshade.Drawable, program uint32)
}

var _ Compiler = (*transpile.Transcompiler)(nil)

// Config configures a [Renderer].
type Config struct {
	Settings gshade.Settings
	Device   Device
	Compiler Compiler
	Sink     gshade.DiagnosticSink
	// Bindings supplies textures and uniform buffers at draw time. May be nil.
	Bindings gshade.BindingSupplier
	// Uniforms sets per-draw uniforms. May be nil.
	Uniforms UniformBinder
	Log      *slog.Logger
	// Now returns the current time for diff rate limiting. Defaults to time.Now.
	Now func() time.Time
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.Device == nil {
		errs = append(errs, errors.New("nil device"))
	}
	if cfg.Compiler == nil {
		errs = append(errs, errors.New("nil compiler"))
	}
	if cfg.Sink == nil {
		errs = append(errs, errors.New("nil diagnostic sink"))
	}
	if err := cfg.Settings.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stats counts cache operations since the renderer was created.
type Stats struct {
	// Diffs is the number of pipeline diffs performed.
	Diffs int
	// Compiles is the number of pipeline item compilations.
	Compiles int
	// Frees is the number of cache entries whose GPU objects were released.
	Frees int
	// Moves is the number of cache entries relocated by a reorder.
	Moves int
}

// Artifact holds the GPU objects and intermediate outputs of one pipeline item.
// Zero handles mean the object does not exist or failed to compile.
type Artifact struct {
	Shaders      [gshade.StageCount]uint32
	Program      uint32
	DebugProgram uint32
	SPIRV        [gshade.StageCount][]uint32
	GLSL         [gshade.StageCount]string
}
