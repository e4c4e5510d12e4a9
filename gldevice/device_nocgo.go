//go:build tinygo || !cgo

package gldevice

import (
	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glrender"
)

// InitHeadless creates a hidden window with a current OpenGL context.
func InitHeadless() (terminate func(), err error) {
	return nil, errNoCGO
}

// Device is unusable without CGo.
type Device struct{}

// New returns a Device whose operations all fail.
func New() *Device { return &Device{} }

func (d *Device) CompileShader(stage gshade.Stage, src string) (uint32, string, error) {
	return 0, "", errNoCGO
}

func (d *Device) LinkProgram(shaders ...uint32) (uint32, string, error) {
	return 0, "", errNoCGO
}

func (d *Device) DeleteShader(shader uint32)                        {}
func (d *Device) DeleteProgram(program uint32)                      {}
func (d *Device) UniformLocation(program uint32, name string) int32 { return -1 }
func (d *Device) DeleteTarget(t *glrender.Target)                   {}
func (d *Device) BindTarget(t *glrender.Target)                     {}
func (d *Device) ResolveTarget(t *glrender.Target)                  {}
func (d *Device) Clear(color [4]float32)                            {}
func (d *Device) UseProgram(program uint32)                         {}
func (d *Device) SetUniform4f(location int32, v [4]float32)         {}
func (d *Device) BindResources(textures, uniformBuffers []uint32)   {}
func (d *Device) Draw(dc glrender.DrawCall)                         {}
func (d *Device) Dispatch(x, y, z uint32)                           {}
func (d *Device) DeleteMesh(vao uint32)                             {}
func (d *Device) DeleteBuffer(buf uint32)                           {}

func (d *Device) CreateTarget(width, height, samples int) (glrender.Target, error) {
	return glrender.Target{}, errNoCGO
}

func (d *Device) ReadPixel(t *glrender.Target, x, y int) ([4]byte, error) {
	return [4]byte{}, errNoCGO
}

func (d *Device) NewMesh(vertices []float32) (uint32, error) { return 0, errNoCGO }

func (d *Device) NewUniformBuffer(data []float32) (uint32, error) { return 0, errNoCGO }
