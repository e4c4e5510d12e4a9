//go:build !tinygo && cgo

package gldevice

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glrender"
)

// InitHeadless creates a 1x1 hidden window with a current OpenGL 4.6 context
// so a [Device] can be used without a visible window. terminate must be called
// when done.
func InitHeadless() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "gshade",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// Device issues OpenGL calls on the current context.
type Device struct {
	// vaos holds meshes created with NewMesh, keyed by VAO.
	vaos map[uint32]uint32
}

// New returns a Device for the current context.
func New() *Device {
	return &Device{vaos: make(map[uint32]uint32)}
}

func shaderType(stage gshade.Stage) uint32 {
	switch stage {
	case gshade.StageVertex:
		return gl.VERTEX_SHADER
	case gshade.StageGeometry:
		return gl.GEOMETRY_SHADER
	case gshade.StageCompute:
		return gl.COMPUTE_SHADER
	}
	return gl.FRAGMENT_SHADER
}

func (d *Device) CompileShader(stage gshade.Stage, src string) (uint32, string, error) {
	shader := gl.CreateShader(shaderType(stage))
	if shader == 0 {
		return 0, "", glErrOrMessage("create shader")
	}
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)
	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &n)
		infoLog := strings.Repeat("\x00", int(n+1))
		gl.GetShaderInfoLog(shader, n, nil, gl.Str(infoLog))
		gl.DeleteShader(shader)
		return 0, strings.TrimRight(infoLog, "\x00"), fmt.Errorf("%s shader: %w", stage, gshade.ErrParse)
	}
	return shader, "", nil
}

func (d *Device) LinkProgram(shaders ...uint32) (uint32, string, error) {
	prog := gl.CreateProgram()
	if prog == 0 {
		return 0, "", glErrOrMessage("create program")
	}
	for _, s := range shaders {
		gl.AttachShader(prog, s)
	}
	gl.LinkProgram(prog)
	for _, s := range shaders {
		gl.DetachShader(prog, s)
	}
	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &n)
		infoLog := strings.Repeat("\x00", int(n+1))
		gl.GetProgramInfoLog(prog, n, nil, gl.Str(infoLog))
		gl.DeleteProgram(prog)
		return 0, strings.TrimRight(infoLog, "\x00"), gshade.ErrLink
	}
	return prog, "", nil
}

func (d *Device) DeleteShader(shader uint32)   { gl.DeleteShader(shader) }
func (d *Device) DeleteProgram(program uint32) { gl.DeleteProgram(program) }

func (d *Device) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

// CreateTarget creates an RGBA8 color texture and a depth renderbuffer. With
// samples above 1 a multisampled framebuffer is created for drawing and the
// single sampled one receives the resolved image.
func (d *Device) CreateTarget(width, height, samples int) (glrender.Target, error) {
	t := glrender.Target{Width: width, Height: height, Samples: samples}
	w, h := int32(width), int32(height)
	gl.GenFramebuffers(1, &t.FBO)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.FBO)
	gl.GenTextures(1, &t.Color)
	gl.BindTexture(gl.TEXTURE_2D, t.Color)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, w, h, 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.Color, 0)
	gl.GenRenderbuffers(1, &t.Depth)
	gl.BindRenderbuffer(gl.RENDERBUFFER, t.Depth)
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH24_STENCIL8, w, h)
	gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_STENCIL_ATTACHMENT, gl.RENDERBUFFER, t.Depth)
	err := checkFramebuffer("target")
	if err == nil && samples > 1 {
		s := int32(samples)
		gl.GenFramebuffers(1, &t.MSFBO)
		gl.BindFramebuffer(gl.FRAMEBUFFER, t.MSFBO)
		gl.GenRenderbuffers(1, &t.MSColor)
		gl.BindRenderbuffer(gl.RENDERBUFFER, t.MSColor)
		gl.RenderbufferStorageMultisample(gl.RENDERBUFFER, s, gl.RGBA8, w, h)
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.RENDERBUFFER, t.MSColor)
		gl.GenRenderbuffers(1, &t.MSDepth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, t.MSDepth)
		gl.RenderbufferStorageMultisample(gl.RENDERBUFFER, s, gl.DEPTH24_STENCIL8, w, h)
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_STENCIL_ATTACHMENT, gl.RENDERBUFFER, t.MSDepth)
		err = checkFramebuffer("multisampled target")
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if err != nil {
		d.DeleteTarget(&t)
		return glrender.Target{}, err
	}
	return t, nil
}

func checkFramebuffer(what string) error {
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		return glErrOrMessage(fmt.Sprintf("%s framebuffer incomplete (status %#x)", what, status))
	}
	return nil
}

func (d *Device) DeleteTarget(t *glrender.Target) {
	for _, fbo := range []*uint32{&t.FBO, &t.MSFBO} {
		if *fbo != 0 {
			gl.DeleteFramebuffers(1, fbo)
		}
	}
	for _, rb := range []*uint32{&t.Depth, &t.MSColor, &t.MSDepth} {
		if *rb != 0 {
			gl.DeleteRenderbuffers(1, rb)
		}
	}
	if t.Color != 0 {
		gl.DeleteTextures(1, &t.Color)
	}
	*t = glrender.Target{}
}

func (d *Device) BindTarget(t *glrender.Target) {
	if t == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		return
	}
	fbo := t.FBO
	if t.Multisampled() {
		fbo = t.MSFBO
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, fbo)
	gl.Viewport(0, 0, int32(t.Width), int32(t.Height))
	gl.Enable(gl.DEPTH_TEST)
}

func (d *Device) ResolveTarget(t *glrender.Target) {
	w, h := int32(t.Width), int32(t.Height)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, t.MSFBO)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, t.FBO)
	gl.BlitFramebuffer(0, 0, w, h, 0, 0, w, h, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

func (d *Device) Clear(color [4]float32) {
	gl.ClearColor(color[0], color[1], color[2], color[3])
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
}

func (d *Device) UseProgram(program uint32) { gl.UseProgram(program) }

func (d *Device) SetUniform4f(location int32, v [4]float32) {
	if location >= 0 {
		gl.Uniform4f(location, v[0], v[1], v[2], v[3])
	}
}

func (d *Device) BindResources(textures, uniformBuffers []uint32) {
	for i, tex := range textures {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, tex)
	}
	for i, ubo := range uniformBuffers {
		gl.BindBufferBase(gl.UNIFORM_BUFFER, uint32(i), ubo)
	}
}

func glTopology(t gshade.Topology) uint32 {
	switch t {
	case gshade.TopologyTriangleStrip:
		return gl.TRIANGLE_STRIP
	case gshade.TopologyLines:
		return gl.LINES
	case gshade.TopologyLineStrip:
		return gl.LINE_STRIP
	case gshade.TopologyPoints:
		return gl.POINTS
	}
	return gl.TRIANGLES
}

func (d *Device) Draw(dc glrender.DrawCall) {
	gl.BindVertexArray(dc.VAO)
	mode := glTopology(dc.Topology)
	count := int32(dc.Count)
	instances := int32(max(dc.InstanceCount, 1))
	if dc.Indexed {
		offset := gl.PtrOffset(dc.First * int(unsafe.Sizeof(uint32(0))))
		gl.DrawElementsInstancedBaseInstance(mode, count, gl.UNSIGNED_INT, offset, instances, uint32(dc.InstanceFirst))
	} else {
		gl.DrawArraysInstancedBaseInstance(mode, int32(dc.First), count, instances, uint32(dc.InstanceFirst))
	}
	gl.BindVertexArray(0)
}

func (d *Device) Dispatch(x, y, z uint32) {
	gl.DispatchCompute(x, y, z)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT | gl.SHADER_IMAGE_ACCESS_BARRIER_BIT)
}

func (d *Device) ReadPixel(t *glrender.Target, x, y int) (px [4]byte, err error) {
	if t == nil || t.FBO == 0 {
		return px, errors.New("read from empty target")
	}
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, t.FBO)
	gl.ReadBuffer(gl.COLOR_ATTACHMENT0)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(int32(x), int32(y), 1, 1, gl.RGBA, gl.UNSIGNED_BYTE, unsafe.Pointer(&px[0]))
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return px, glgl.Err()
}

// NewMesh uploads interleaved position and normal vertices, 6 floats each,
// and returns the vertex array describing them at [AttribPosition] and [AttribNormal].
func (d *Device) NewMesh(vertices []float32) (vao uint32, err error) {
	if len(vertices) == 0 || len(vertices)%6 != 0 {
		return 0, fmt.Errorf("mesh needs a positive multiple of 6 floats, got %d", len(vertices))
	}
	var vbo uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, 4*len(vertices), gl.Ptr(vertices), gl.STATIC_DRAW)
	const stride = 6 * 4
	gl.EnableVertexAttribArray(AttribPosition)
	gl.VertexAttribPointerWithOffset(AttribPosition, 3, gl.FLOAT, false, stride, 0)
	gl.EnableVertexAttribArray(AttribNormal)
	gl.VertexAttribPointerWithOffset(AttribNormal, 3, gl.FLOAT, false, stride, 3*4)
	gl.BindVertexArray(0)
	if err = glgl.Err(); err != nil {
		gl.DeleteBuffers(1, &vbo)
		gl.DeleteVertexArrays(1, &vao)
		return 0, err
	}
	d.vaos[vao] = vbo
	return vao, nil
}

// DeleteMesh frees a vertex array created by NewMesh and its buffer.
func (d *Device) DeleteMesh(vao uint32) {
	vbo, ok := d.vaos[vao]
	if !ok {
		return
	}
	delete(d.vaos, vao)
	gl.DeleteBuffers(1, &vbo)
	gl.DeleteVertexArrays(1, &vao)
}

// NewUniformBuffer uploads data to a new uniform buffer for use with BindResources.
func (d *Device) NewUniformBuffer(data []float32) (ubo uint32, err error) {
	if len(data) == 0 {
		return 0, errors.New("empty uniform buffer")
	}
	gl.GenBuffers(1, &ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, 4*len(data), gl.Ptr(data), gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
	if err = glgl.Err(); err != nil {
		gl.DeleteBuffers(1, &ubo)
		return 0, err
	}
	return ubo, nil
}

// DeleteBuffer frees a buffer created with NewUniformBuffer.
func (d *Device) DeleteBuffer(buf uint32) { gl.DeleteBuffers(1, &buf) }

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
