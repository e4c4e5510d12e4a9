//go:build !tinygo && cgo

package gshadeaux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/gshade"
	"github.com/soypat/gshade/gldevice"
	"github.com/soypat/gshade/glrender"
)

// View opens a window and renders pl until the window is closed or ctx is
// done. setup is called once the OpenGL context is current and must return
// the renderer drawing pl on dev; View closes it on return. Left click picks
// the drawable under the cursor and R queues a recompile of every item.
// View must be called from the main goroutine with its OS thread locked.
func View(ctx context.Context, pl *gshade.Pipeline, cfg ViewerConfig, setup func(dev *gldevice.Device) (*glrender.Renderer, error)) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := gshade.LoggerOrNop(cfg.Log)
	window, term, err := startGLFW(cfg)
	if err != nil {
		return err
	}
	defer term()
	r, err := setup(gldevice.New())
	if err != nil {
		return err
	}
	defer r.Close()

	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   blitVertex + "\x00",
		Fragment: blitFragment + "\x00",
	})
	if err != nil {
		return fmt.Errorf("viewer blit program: %w", err)
	}
	defer prog.Delete()
	texUniform, err := prog.UniformLocation("uTex\x00")
	if err != nil {
		return err
	}
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	defer gl.DeleteVertexArrays(1, &vao)

	var (
		pickPending bool
		pickX       float64
		pickY       float64
	)
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button == glfw.MouseButtonLeft && action == glfw.Press {
			pickX, pickY = w.GetCursorPos()
			pickPending = true
		}
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyR && action == glfw.Press {
			for _, h := range pl.Items(nil) {
				r.QueueRecompile(pl.Name(h))
			}
		}
	})

	for !window.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		fbw, fbh := window.GetFramebufferSize()
		err = r.Render(ctx, fbw, fbh, false, gshade.ItemHandle{})
		if err != nil {
			log.Warn("render", slog.String("err", err.Error()))
		}
		if pickPending {
			pickPending = false
			ww, wh := window.GetSize()
			x := int(pickX * float64(fbw) / float64(max(ww, 1)))
			y := int(pickY * float64(fbh) / float64(max(wh, 1)))
			err = r.Pick(ctx, x, y, false, cfg.OnPick)
			if err != nil {
				log.Warn("pick", slog.String("err", err.Error()))
			}
		}

		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.Viewport(0, 0, int32(fbw), int32(fbh))
		gl.Disable(gl.DEPTH_TEST)
		gl.ClearColor(0, 0, 0, 1)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		if h, ok := outputHandle(pl, cfg.Output); ok {
			if out, ok := r.Output(h); ok {
				prog.Bind()
				gl.ActiveTexture(gl.TEXTURE0)
				gl.BindTexture(gl.TEXTURE_2D, out.Color)
				gl.Uniform1i(texUniform, 0)
				gl.BindVertexArray(vao)
				gl.DrawArrays(gl.TRIANGLES, 0, 3)
				gl.BindVertexArray(0)
				prog.Unbind()
			}
		}
		if err = glgl.Err(); err != nil {
			return err
		}
		window.SwapBuffers()
		glfw.PollEvents()
		time.Sleep(time.Second / 120)
	}
	return nil
}

const blitVertex = `#version 330
out vec2 vTexCoord;
void main() {
	vec2 uv = vec2((gl_VertexID << 1) & 2, gl_VertexID & 2);
	vTexCoord = uv;
	gl_Position = vec4(uv * 2.0 - 1.0, 0.0, 1.0);
}
`

const blitFragment = `#version 330
in vec2 vTexCoord;
out vec4 fragColor;
uniform sampler2D uTex;
void main() {
	fragColor = texture(uTex, vTexCoord);
}
`

func startGLFW(cfg ViewerConfig) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	title := cfg.Title
	if title == "" {
		title = "gshade viewer"
	}
	window, err = glfw.CreateWindow(cfg.Width, cfg.Height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, errors.Join(errors.New("initializing OpenGL"), err)
	}
	return window, glfw.Terminate, nil
}
