package glrender

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soypat/gshade"
)

// fakeDevice records GPU object lifetimes. Its shader compiler rejects any
// statement line that does not end in a semicolon or brace, reporting the
// error in the NVIDIA driver format.
type fakeDevice struct {
	next     uint32
	shaders  map[uint32]gshade.Stage
	programs map[uint32][]uint32
	targets  map[uint32]bool

	compiled [gshade.StageCount]int
	draws    []DrawCall
	colors   [][4]float32 // Debug color bound for each draw.
	dispatch int
	color    [4]float32
	// covers reports whether a draw covers the pixel read back by ReadPixel.
	covers func(dc DrawCall) bool
	// failLink makes LinkProgram fail.
	failLink bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		shaders:  make(map[uint32]gshade.Stage),
		programs: make(map[uint32][]uint32),
		targets:  make(map[uint32]bool),
	}
}

func (fd *fakeDevice) id() uint32 {
	fd.next++
	return fd.next
}

func (fd *fakeDevice) CompileShader(stage gshade.Stage, src string) (uint32, string, error) {
	fd.compiled[stage]++
	for i, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		switch line[len(line)-1] {
		case ';', '{', '}':
			continue
		}
		return 0, fmt.Sprintf("0(%d) : error C0000: syntax error, unexpected token after %q\n", i+1, line), errors.New("compile failed")
	}
	id := fd.id()
	fd.shaders[id] = stage
	return id, "", nil
}

func (fd *fakeDevice) LinkProgram(shaders ...uint32) (uint32, string, error) {
	if fd.failLink {
		return 0, "error: vertex output outputVS1 not read by fragment shader\n", errors.New("link failed")
	}
	for _, s := range shaders {
		if _, ok := fd.shaders[s]; !ok {
			return 0, "", fmt.Errorf("link with invalid shader %d", s)
		}
	}
	id := fd.id()
	fd.programs[id] = shaders
	return id, "", nil
}

func (fd *fakeDevice) DeleteShader(shader uint32) {
	if _, ok := fd.shaders[shader]; !ok {
		panic(fmt.Sprintf("double delete of shader %d", shader))
	}
	delete(fd.shaders, shader)
}

func (fd *fakeDevice) DeleteProgram(program uint32) {
	if _, ok := fd.programs[program]; !ok {
		panic(fmt.Sprintf("double delete of program %d", program))
	}
	delete(fd.programs, program)
}

func (fd *fakeDevice) UniformLocation(program uint32, name string) int32 { return 7 }

func (fd *fakeDevice) CreateTarget(width, height, samples int) (Target, error) {
	t := Target{FBO: fd.id(), Color: fd.id(), Width: width, Height: height, Samples: samples}
	fd.targets[t.FBO] = true
	return t, nil
}

func (fd *fakeDevice) DeleteTarget(t *Target)  { delete(fd.targets, t.FBO) }
func (fd *fakeDevice) BindTarget(t *Target)    {}
func (fd *fakeDevice) ResolveTarget(t *Target) {}
func (fd *fakeDevice) Clear(color [4]float32)  {}
func (fd *fakeDevice) UseProgram(program uint32) {
	fd.color = [4]float32{}
}
func (fd *fakeDevice) SetUniform4f(location int32, v [4]float32)       { fd.color = v }
func (fd *fakeDevice) BindResources(textures, uniformBuffers []uint32) {}
func (fd *fakeDevice) Dispatch(x, y, z uint32)                         { fd.dispatch++ }

func (fd *fakeDevice) Draw(dc DrawCall) {
	fd.draws = append(fd.draws, dc)
	fd.colors = append(fd.colors, fd.color)
}

// ReadPixel returns the color of the last draw that covers the pixel.
func (fd *fakeDevice) ReadPixel(t *Target, x, y int) ([4]byte, error) {
	var px [4]byte
	for i, dc := range fd.draws {
		if fd.covers != nil && fd.covers(dc) {
			c := fd.colors[i]
			for j := range px {
				px[j] = byte(c[j]*255 + 0.5)
			}
		}
	}
	return px, nil
}

func (fd *fakeDevice) resetDraws() {
	fd.draws = fd.draws[:0]
	fd.colors = fd.colors[:0]
}
