package transpile

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/soypat/gshade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTools emulates the front-end and cross-compiler command lines.
type fakeTools struct {
	calls    [][]string
	crossOut string
	feOutput string
}

func (ft *fakeTools) Run(ctx context.Context, argv []string) ([]byte, error) {
	ft.calls = append(ft.calls, argv)
	switch argv[0] {
	case "glslangValidator":
		input, err := os.ReadFile(argv[len(argv)-1])
		if err != nil {
			return nil, err
		}
		if strings.Contains(string(input), "FAIL") {
			return []byte(ft.feOutput), errors.New("exit status 2")
		}
		return nil, os.WriteFile(argValue(argv, "-o"), Bytes(testModule("albedoTex", "smp")), 0600)
	case "spirv-cross":
		return nil, os.WriteFile(argValue(argv, "--output"), []byte(ft.crossOut), 0600)
	}
	return nil, errors.New("unknown tool " + argv[0])
}

func argValue(argv []string, flag string) string {
	for i := range argv[:len(argv)-1] {
		if argv[i] == flag {
			return argv[i+1]
		}
	}
	return ""
}

// testModule builds a SPIR-V module declaring one image and one sampler variable.
func testModule(texture, sampler string) []uint32 {
	words := []uint32{SPIRVMagic, 0x00010000, 0, 20, 0}
	inst := func(op uint32, args ...uint32) {
		words = append(words, uint32(len(args)+1)<<16|op)
		words = append(words, args...)
	}
	name := func(id uint32, s string) {
		b := append([]byte(s), 0)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
		args := []uint32{id}
		for i := 0; i < len(b); i += 4 {
			args = append(args, uint32(b[i])|uint32(b[i+1])<<8|uint32(b[i+2])<<16|uint32(b[i+3])<<24)
		}
		inst(opName, args...)
	}
	name(10, texture)
	name(11, sampler)
	inst(opTypeImage, 1, 2, 1, 0, 0, 0, 1, 0)
	inst(opTypeSampler, 3)
	inst(opTypePointer, 4, 0, 1)
	inst(opTypePointer, 5, 0, 3)
	inst(opVariable, 4, 10, 0)
	inst(opVariable, 5, 11, 0)
	return words
}

func newTestTranscompiler(t *testing.T, tools Runner, files map[string]string) (*Transcompiler, *gshade.MessageStack) {
	t.Helper()
	src := gshade.NewDirSource("")
	for name, text := range files {
		src.SetOverlay(name, text)
	}
	var plugins gshade.PluginRegistry
	plugins.Register(WGSL{})
	sink := new(gshade.MessageStack)
	tc, err := New(Config{
		Settings: gshade.DefaultSettings(),
		Source:   src,
		Sink:     sink,
		Plugins:  &plugins,
		Runner:   tools,
	})
	require.NoError(t, err)
	return tc, sink
}

const crossVS = `#version 330

layout(std140) uniform type_cbPerFrame
{
    layout(row_major) mat4 matVP;
} cbPerFrame;

uniform sampler2D SPIRV_Cross_CombinedalbedoTexsmp;

layout(location = 0) in vec3 in_var_POSITION;
out vec2 out_var_TEXCOORD0;
out vec3 out_var_NORMAL;

void main()
{
    gl_Position = cbPerFrame.matVP * vec4(in_var_POSITION, 1.0);
    out_var_TEXCOORD0 = texture(SPIRV_Cross_CombinedalbedoTexsmp, in_var_POSITION.xy).xy;
    out_var_NORMAL = in_var_POSITION;
}
`

func TestBuildHLSLVertex(t *testing.T) {
	tools := &fakeTools{crossOut: crossVS}
	tc, sink := newTestTranscompiler(t, tools, map[string]string{
		"vs.hlsl": "float4 VSMain(float3 p : POSITION) : SV_POSITION { return float4(p, 1); }",
	})
	unit := &gshade.ShaderSourceUnit{Path: "vs.hlsl", Language: gshade.LangHLSL, Entry: "VSMain", Stage: gshade.StageVertex}
	res, ok := tc.Build(context.Background(), Request{
		Group:  "P1",
		Unit:   unit,
		Macros: []gshade.Macro{{Name: "A", Value: "1", Active: true}, {Name: "B", Value: "2"}},
	})
	require.True(t, ok, sink.Messages(nil))
	assert.True(t, res.Transcompiled)
	assert.NotEmpty(t, res.SPIRV)
	assert.Contains(t, res.GLSL, "void main()")
	assert.Contains(t, res.GLSL, "out vec2 outputVS0;")
	assert.Contains(t, res.GLSL, "out vec3 outputVS1;")
	assert.Less(t, strings.Index(res.GLSL, "outputVS0"), strings.Index(res.GLSL, "outputVS1"))
	assert.Contains(t, res.GLSL, "uniform mat4 matVP;")
	assert.Contains(t, res.GLSL, "gl_Position = matVP * vec4(in_var_POSITION, 1.0);")
	assert.Contains(t, res.GLSL, "uniform sampler2D albedoTex;")
	assert.NotContains(t, res.GLSL, "out_var_")
	assert.Zero(t, sink.Count("", gshade.SeverityError))

	require.Len(t, tools.calls, 2)
	fe := strings.Join(tools.calls[0], " ")
	assert.Contains(t, fe, "-V --target-env vulkan1.0 -S vert")
	assert.Contains(t, fe, "-D -e VSMain")
	assert.Contains(t, fe, "-DA=1")
	assert.NotContains(t, fe, "-DB")
	cross := strings.Join(tools.calls[1], " ")
	assert.Contains(t, cross, "--version 330 --no-es")
}

const crossAudioPS = `#version 330

in vec2 in_var_TEXCOORD0;
layout(location = 0) out vec4 out_var_SV_Target;

void main()
{
    out_var_SV_Target = vec4(sin(in_var_TEXCOORD0.x), 0.0, 0.0, 1.0);
}
`

func TestBuildHLSLAudioPixel(t *testing.T) {
	tools := &fakeTools{crossOut: crossAudioPS}
	tc, sink := newTestTranscompiler(t, tools, map[string]string{
		"synth.hlsl": "float4 PSMain(float2 uv : TEXCOORD0) : SV_Target { return float4(sin(uv.x), 0, 0, 1); }",
	})
	res, ok := tc.Build(context.Background(), Request{
		Group: "synth",
		Unit:  &gshade.ShaderSourceUnit{Path: "synth.hlsl", Language: gshade.LangHLSL, Entry: "PSMain", Stage: gshade.StageAudio},
	})
	require.True(t, ok, sink.Messages(nil))
	assert.True(t, res.Transcompiled)
	assert.Contains(t, res.GLSL, "in vec2 outputVS0;")
	assert.Contains(t, res.GLSL, "out vec4 outputPS0;")
	assert.NotContains(t, res.GLSL, "in_var_")
	require.NotEmpty(t, tools.calls)
	assert.Contains(t, strings.Join(tools.calls[0], " "), "-S frag")
}

func TestBuildIdempotent(t *testing.T) {
	tools := &fakeTools{crossOut: crossVS}
	tc, _ := newTestTranscompiler(t, tools, map[string]string{"vs.hlsl": "float4 VSMain() : SV_POSITION { return 0; }"})
	req := Request{Group: "P1", Unit: &gshade.ShaderSourceUnit{Path: "vs.hlsl", Language: gshade.LangHLSL, Entry: "VSMain"}}
	a, okA := tc.Build(context.Background(), req)
	b, okB := tc.Build(context.Background(), req)
	assert.Equal(t, okA, okB)
	assert.Equal(t, a.GLSL, b.GLSL)
	assert.Equal(t, a.SPIRV, b.SPIRV)
}

func TestFrontEndFailureDiagnostics(t *testing.T) {
	tools := &fakeTools{feOutput: "input.hlsl\nERROR: /tmp/gshade-fe-1/input.hlsl:3: 'FAIL' : undeclared identifier\nERROR: 1 compilation errors.  No code generated.\n"}
	tc, sink := newTestTranscompiler(t, tools, map[string]string{
		"ps.hlsl":     "#include \"common.hlsl\"\nfloat4 PSMain() : SV_Target\n{\n\treturn FAIL;\n}",
		"common.hlsl": "// one line",
	})
	_, ok := tc.Build(context.Background(), Request{
		Group: "P1",
		Unit:  &gshade.ShaderSourceUnit{Path: "ps.hlsl", Language: gshade.LangHLSL, Entry: "PSMain", Stage: gshade.StagePixel},
	})
	require.False(t, ok)
	msgs := sink.Messages(nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, gshade.Diagnostic{
		Severity: gshade.SeverityError,
		Group:    "P1",
		Text:     "'FAIL' : undeclared identifier",
		Line:     3,
		Stage:    gshade.StagePixel,
	}, msgs[0])
}

func TestFrontEndUnrecognizedOutput(t *testing.T) {
	tools := &fakeTools{feOutput: "segfault in glslang\n"}
	tc, sink := newTestTranscompiler(t, tools, map[string]string{"cs.vkcomp": "#version 450\nFAIL"})
	_, ok := tc.Build(context.Background(), Request{
		Group: "C",
		Unit:  &gshade.ShaderSourceUnit{Path: "cs.vkcomp", Language: gshade.LangVulkanGLSL, Stage: gshade.StageCompute},
	})
	require.False(t, ok)
	msgs := sink.Messages(nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, -1, msgs[0].Line)
	assert.Equal(t, "segfault in glslang", msgs[0].Text)
}

func TestPrescanFailsFast(t *testing.T) {
	tools := &fakeTools{}
	tc, sink := newTestTranscompiler(t, tools, nil)
	_, ok := tc.Build(context.Background(), Request{
		Group: "P1",
		Unit: &gshade.ShaderSourceUnit{
			Inline:   "float4 PSMain() : SV_Target\n{\n\treturn float4();\n}",
			Language: gshade.LangHLSL, Entry: "PSMain", Stage: gshade.StagePixel,
		},
	})
	require.False(t, ok)
	assert.Empty(t, tools.calls, "front-end must not run")
	msgs := sink.Messages(nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, 3, msgs[0].Line)
}

func TestBuildGLSLSkipsTools(t *testing.T) {
	tools := &fakeTools{}
	tc, sink := newTestTranscompiler(t, tools, map[string]string{
		"inc.glsl": "float helper() { return 1.0; }\n",
		"ps.frag":  "#version 330\n#include \"inc.glsl\"\nout vec4 c;\nvoid main() { c = vec4(helper()); }\n",
	})
	res, ok := tc.Build(context.Background(), Request{
		Group:  "P1",
		Unit:   &gshade.ShaderSourceUnit{Path: "ps.frag", Language: gshade.LangGLSL, Stage: gshade.StagePixel},
		Macros: []gshade.Macro{{Name: "QUALITY", Value: "2", Active: true}},
	})
	require.True(t, ok, sink.Messages(nil))
	assert.Empty(t, tools.calls)
	assert.Nil(t, res.SPIRV)
	assert.False(t, res.Transcompiled)
	assert.Contains(t, res.GLSL, "#define QUALITY 2")
	assert.Contains(t, res.GLSL, "float helper()")
	assert.Equal(t, 3, res.LineBias) // two identity macros and QUALITY.
}

func TestBuildUnreadableSource(t *testing.T) {
	tc, sink := newTestTranscompiler(t, &fakeTools{}, nil)
	_, ok := tc.Build(context.Background(), Request{
		Group: "P1",
		Unit:  &gshade.ShaderSourceUnit{Path: "missing.frag", Stage: gshade.StagePixel},
	})
	require.False(t, ok)
	msgs := sink.Messages(nil)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, gshade.ErrSourceUnreadable.Error())
}

func TestMissingPlugin(t *testing.T) {
	tc, sink := newTestTranscompiler(t, &fakeTools{}, map[string]string{"a.slang": "x"})
	_, ok := tc.Build(context.Background(), Request{
		Group: "P1",
		Unit:  &gshade.ShaderSourceUnit{Path: "a.slang", Language: gshade.LangPlugin},
	})
	require.False(t, ok)
	assert.Equal(t, 1, sink.Count("P1", gshade.SeverityError))
}

type upperPlugin struct{ processed int }

func (*upperPlugin) Extensions() []string { return []string{".up"} }
func (*upperPlugin) CompileToSPIRV(ctx context.Context, req gshade.PluginRequest) ([]uint32, error) {
	if strings.Contains(req.Source, "bad") {
		return nil, errors.New("ERROR: a.up:1: bad token")
	}
	return testModule("tex", "smp"), nil
}
func (*upperPlugin) EmitGLSL(ctx context.Context, req gshade.PluginRequest) (string, error) {
	return "#version 330\nout vec4 fragColor;\nvoid " + req.Entry + "() { fragColor = vec4(1.0); }\n", nil
}
func (p *upperPlugin) ProcessGeneratedGLSL(stage gshade.Stage, glsl string) (string, error) {
	p.processed++
	return glsl + "// processed\n", nil
}

func TestPluginCapabilities(t *testing.T) {
	tc, sink := newTestTranscompiler(t, &fakeTools{}, map[string]string{"a.up": "good", "b.up": "bad"})
	plugin := &upperPlugin{}
	tc.cfg.Plugins.Register(plugin)
	res, ok := tc.Build(context.Background(), Request{
		Group: "P1",
		Unit:  &gshade.ShaderSourceUnit{Path: "a.up", Language: gshade.LangPlugin, Entry: "fsMain", Stage: gshade.StagePixel},
	})
	require.True(t, ok, sink.Messages(nil))
	assert.Equal(t, 1, plugin.processed)
	assert.Contains(t, res.GLSL, "void main()")
	assert.Contains(t, res.GLSL, "out vec4 outputPS0;")
	assert.True(t, strings.HasSuffix(res.GLSL, "// processed\n"))

	_, ok = tc.Build(context.Background(), Request{
		Group: "P2",
		Unit:  &gshade.ShaderSourceUnit{Path: "b.up", Language: gshade.LangPlugin, Stage: gshade.StagePixel},
	})
	require.False(t, ok)
	msgs := sink.Messages(nil)
	require.Len(t, msgs, 1)
	assert.Equal(t, "P2", msgs[0].Group)
	assert.Equal(t, 1, msgs[0].Line)
}

const wgslTriangle = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec3<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) idx: u32) -> VertexOutput {
    var out: VertexOutput;
    let x = f32(i32(idx) - 1);
    let y = f32(i32(idx & 1u) * 2 - 1);
    out.position = vec4<f32>(x, y, 0.0, 1.0);
    out.color = vec3<f32>(1.0, 0.0, 0.0);
    return out;
}

@fragment
fn fs_main(input: VertexOutput) -> @location(0) vec4<f32> {
    return vec4<f32>(input.color, 1.0);
}
`

func TestWGSLPlugin(t *testing.T) {
	tc, sink := newTestTranscompiler(t, &fakeTools{}, map[string]string{"tri.wgsl": wgslTriangle})
	res, ok := tc.Build(context.Background(), Request{
		Group: "W",
		Unit:  &gshade.ShaderSourceUnit{Path: "tri.wgsl", Language: gshade.LangPlugin, Entry: "vs_main", Stage: gshade.StageVertex},
	})
	require.True(t, ok, sink.Messages(nil))
	assert.NotEmpty(t, res.SPIRV)
	assert.Equal(t, uint32(SPIRVMagic), res.SPIRV[0])
	assert.Contains(t, res.GLSL, "void main()")
	assert.Contains(t, res.GLSL, "gl_Position")

	_, ok = tc.Build(context.Background(), Request{
		Group: "W",
		Unit:  &gshade.ShaderSourceUnit{Path: "tri.wgsl", Language: gshade.LangPlugin, Entry: "fs_main", Stage: gshade.StageVertex},
	})
	assert.False(t, ok, "stage mismatch must fail")
}

func TestReflect(t *testing.T) {
	refl, err := Reflect(testModule("albedo", "linearSampler"))
	require.NoError(t, err)
	assert.Equal(t, []string{"albedo"}, refl.Textures)
	assert.Equal(t, []string{"linearSampler"}, refl.Samplers)
	_, err = Reflect([]uint32{1, 2, 3})
	assert.Error(t, err)
	words, err := Words(Bytes(testModule("a", "b")))
	require.NoError(t, err)
	assert.Equal(t, testModule("a", "b"), words)
}

// TestToolchain runs the real front-end and cross-compiler when installed.
func TestToolchain(t *testing.T) {
	for _, tool := range []string{"glslangValidator", "spirv-cross"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skip(tool, "not installed")
		}
	}
	tc, sink := newTestTranscompiler(t, ExecRunner{}, map[string]string{
		"vs.hlsl": `
struct VSOut {
	float4 pos : SV_POSITION;
	float2 uv : TEXCOORD0;
	float3 normal : NORMAL;
};
VSOut VSMain(float3 p : POSITION) {
	VSOut o;
	o.pos = float4(p, 1);
	o.uv = p.xy;
	o.normal = p;
	return o;
}`,
	})
	tc.cfg.Settings.WorkDir = t.TempDir()
	res, ok := tc.Build(context.Background(), Request{
		Group: "P1",
		Unit:  &gshade.ShaderSourceUnit{Path: "vs.hlsl", Language: gshade.LangHLSL, Entry: "VSMain", Stage: gshade.StageVertex},
	})
	require.True(t, ok, sink.Messages(nil))
	assert.Contains(t, res.GLSL, "void main()")
	assert.Contains(t, res.GLSL, "outputVS0")
	assert.Contains(t, res.GLSL, "outputVS1")
	assert.NotContains(t, res.GLSL, "VSMain")
}
