package glbuild_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glbuild"
)

func TestInjectMacrosOrdering(t *testing.T) {
	src := "#version 330\nout vec4 c;\nvoid main(){c=vec4(1);}\n"
	macros := []gshade.Macro{
		{Name: "A", Value: "1", Active: true},
		{Name: "B", Value: "2", Active: false},
		{Name: "C", Value: "3", Active: true},
	}
	got, inserted := glbuild.InjectMacros(src, macros)
	if strings.Contains(got, "#define B") {
		t.Fatal("inactive macro injected:\n", got)
	}
	lines := strings.Split(got, "\n")
	if lines[0] != "#version 330" {
		t.Fatal("version line moved:\n", got)
	}
	want := []string{
		"#define " + glbuild.MacroPlatform + " 1",
		"#define " + glbuild.MacroVersion,
		"#define A 1",
		"#define C 3",
		"out vec4 c;",
	}
	for i, w := range want {
		if !strings.HasPrefix(lines[i+1], w) {
			t.Errorf("line %d: want prefix %q, got %q", i+1, w, lines[i+1])
		}
	}
	if inserted != 4 {
		t.Errorf("want 4 inserted lines, got %d", inserted)
	}
}

func TestInjectMacrosNoop(t *testing.T) {
	macros := []gshade.Macro{{Name: "A", Value: "1", Active: true}}
	src := "float4 main() : SV_Target { return 0; }"
	got, n := glbuild.InjectMacros(src, macros)
	if got != src || n != 0 {
		t.Fatal("expected no-op without #version")
	}
	src = "#version 330\nvoid main(){}"
	got, n = glbuild.InjectMacros(src, []gshade.Macro{{Name: "A", Active: false}})
	if got != src || n != 0 {
		t.Fatal("expected no-op without active macros")
	}
	// #version on the last line without trailing newline.
	got, _ = glbuild.InjectMacros("#version 330", macros)
	if !strings.HasSuffix(got, "#define A 1\n") || !strings.HasPrefix(got, "#version 330\n") {
		t.Fatalf("bad injection: %q", got)
	}
}

func newSource(files map[string]string, includePaths ...string) *gshade.DirSource {
	src := gshade.NewDirSource("", includePaths...)
	for name, text := range files {
		src.SetOverlay(name, text)
	}
	return src
}

func TestIncludeResolve(t *testing.T) {
	src := newSource(map[string]string{
		"inc/common.glsl": "float a;\nfloat b;\n",
		"inc/nested.glsl": "#include \"common.glsl\"\nfloat c;",
		"local.glsl":      "float d;",
	}, "inc")
	r := glbuild.IncludeResolver{Source: src}
	var bias int
	got := r.Resolve("#version 330\n#include \"nested.glsl\"\n  #include <local.glsl>\n#include \"missing.glsl\"\nvoid main(){}\n", []string{"main.frag"}, &bias)
	want := "#version 330\nfloat a;\nfloat b;\nfloat c;\nfloat d;\n\nvoid main(){}\n"
	if got != want {
		t.Fatalf("want\n%q\ngot\n%q", want, got)
	}
	if bias != 2 {
		t.Fatalf("want line bias 2, got %d", bias)
	}
}

func TestIncludeCycleTerminates(t *testing.T) {
	src := newSource(map[string]string{
		"a.glsl": "float a;\n#include \"b.glsl\"\n",
		"b.glsl": "float b;\n#include \"c.glsl\"\n",
		"c.glsl": "float c;\n#include \"a.glsl\"\n",
	})
	var sink gshade.MessageStack
	r := glbuild.IncludeResolver{Source: src, Sink: &sink, Group: "P1", Stage: gshade.StagePixel}
	var bias int
	got := r.Resolve("#include \"a.glsl\"\nvoid main(){}", []string{"main.frag"}, &bias)
	msgs := sink.Messages(nil)
	if len(msgs) != 1 {
		t.Fatalf("want exactly one diagnostic, got %v", msgs)
	}
	if msgs[0].Text != glbuild.RecursiveIncludeMsg || msgs[0].Group != "P1" || msgs[0].Stage != gshade.StagePixel {
		t.Fatal("unexpected diagnostic", msgs[0])
	}
	for _, decl := range []string{"float a;", "float b;", "float c;"} {
		if strings.Count(got, decl) != 1 {
			t.Errorf("want %q exactly once in\n%s", decl, got)
		}
	}
}

func TestIncludeSelf(t *testing.T) {
	src := newSource(map[string]string{"self.glsl": "#include \"self.glsl\"\nfloat x;"})
	var sink gshade.MessageStack
	r := glbuild.IncludeResolver{Source: src, Sink: &sink, Group: "G"}
	text, _ := src.LoadProjectFile("self.glsl")
	got := r.Resolve(text, []string{"self.glsl"}, nil)
	if got != "\nfloat x;" {
		t.Fatalf("got %q", got)
	}
	msgs := sink.Messages(nil)
	if len(msgs) != 1 || msgs[0].Line != 1 {
		t.Fatal("want one diagnostic on line 1", msgs)
	}
}

func TestRenameLinkageVertex(t *testing.T) {
	src := `#version 330
layout(location = 0) in vec3 in_var_POSITION;
layout(location = 1) in vec2 in_var_TEXCOORD0;
out vec2 out_var_TEXCOORD0;
out vec3 out_var_NORMAL;

void main()
{
    gl_Position = vec4(in_var_POSITION, 1.0);
    out_var_TEXCOORD0 = in_var_TEXCOORD0;
    out_var_NORMAL = vec3(0.0);
}
`
	got := glbuild.RenameLinkage(src, gshade.StageVertex, false)
	for _, want := range []string{"out vec2 outputVS0;", "out vec3 outputVS1;", "outputVS0 = in_var_TEXCOORD0;", "outputVS1 = vec3(0.0);"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
	if strings.Contains(got, "out_var_") {
		t.Error("output not renamed\n", got)
	}
}

func TestRenameLinkagePixelAfterGeometry(t *testing.T) {
	src := `#version 330
in vec3 in_var_NORMAL;
in vec2 in_var_UV;
layout(location = 0) out vec4 out_var_SV_Target;
void main() { out_var_SV_Target = vec4(in_var_NORMAL, in_var_UV.x); }
`
	got := glbuild.RenameLinkage(src, gshade.StagePixel, true)
	for _, want := range []string{"in vec3 outputGS0;", "in vec2 outputGS1;", "out vec4 outputPS0;", "outputPS0 = vec4(outputGS0, outputGS1.x);"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
	got = glbuild.RenameLinkage(src, gshade.StagePixel, false)
	if !strings.Contains(got, "in vec3 outputVS0;") {
		t.Error("pixel inputs must follow vertex naming without geometry stage\n", got)
	}
}

func TestRenameLinkageAudioMatchesFullscreenVertex(t *testing.T) {
	src := `#version 330
in vec2 in_var_TEXCOORD0;
layout(location = 0) out vec4 out_var_SV_Target;
void main() { out_var_SV_Target = vec4(in_var_TEXCOORD0, 0.0, 1.0); }
`
	got := glbuild.RenameLinkage(src, gshade.StageAudio, false)
	for _, want := range []string{"in vec2 outputVS0;", "out vec4 outputPS0;", "vec4(outputVS0, 0.0, 1.0)"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
	if !strings.Contains(glbuild.FullscreenVertexSource(), "out vec2 outputVS0;") {
		t.Error("fullscreen vertex stage output does not match audio stage input")
	}
}

func TestRenameEntry(t *testing.T) {
	src := "void helper(float x) {}\nvoid VSMain()\n{\n helper(1.0);\n}\n"
	got := glbuild.RenameEntry(src, "VSMain")
	if !strings.Contains(got, "void main()") || strings.Contains(got, "VSMain") {
		t.Fatal("entry not renamed\n", got)
	}
	withMain := "void VSMain(){}\nvoid main(){VSMain();}"
	if glbuild.RenameEntry(withMain, "VSMain") != withMain {
		t.Fatal("must not rename when main exists")
	}
}

func TestFlattenUniformBlocks(t *testing.T) {
	src := `#version 330
layout(binding = 0, std140) uniform type_cbPerFrame
{
    layout(row_major) mat4 matVP;
    vec4 tint;
} cbPerFrame;

uniform sampler2D tex;
layout(std140) uniform Anon
{
    float time;
};

void main()
{
    gl_Position = cbPerFrame.matVP * vec4(cbPerFrame.tint.xyz * time, 1.0);
}
`
	got := glbuild.FlattenUniformBlocks(src)
	for _, want := range []string{"uniform mat4 matVP;", "uniform vec4 tint;", "uniform float time;", "uniform sampler2D tex;", "gl_Position = matVP * vec4(tint.xyz * time, 1.0);"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
	if strings.Contains(got, "{\n    ") && strings.Contains(got, "type_cbPerFrame") {
		t.Error("block not flattened\n", got)
	}
}

func TestRenameCombinedSamplers(t *testing.T) {
	src := `uniform sampler2D SPIRV_Cross_CombinedalbedoTexsmp;
uniform sampler2D SPIRV_Cross_CombinedalbedoTexsmpPoint;
uniform sampler2D SPIRV_Cross_CombinednormalTexsmp;
void main(){ texture(SPIRV_Cross_CombinedalbedoTexsmp, vec2(0)); }
`
	got := glbuild.RenameCombinedSamplers(src, []string{"albedoTex", "normalTex"})
	for _, want := range []string{"uniform sampler2D albedoTex;", "uniform sampler2D albedoTex_smpPoint;", "uniform sampler2D normalTex;", "texture(albedoTex, vec2(0))"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in\n%s", want, got)
		}
	}
}

func TestPrescan(t *testing.T) {
	err := glbuild.Prescan("float4 main() : SV_Target\n{\n\treturn float4();\n}", gshade.LangHLSL)
	var unsupported *glbuild.UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatal("expected unsupported construct error, got", err)
	}
	if unsupported.Line != 3 || !errors.Is(err, gshade.ErrUnsupportedConstruct) {
		t.Fatal("bad error", unsupported)
	}
	if err := glbuild.Prescan("vec3 a = vec3( );", gshade.LangVulkanGLSL); err == nil {
		t.Fatal("expected error for vulkan glsl")
	}
	if err := glbuild.Prescan("vec3 a = vec3();", gshade.LangGLSL); err != nil {
		t.Fatal("plain GLSL is not prescanned")
	}
	if err := glbuild.Prescan("float4 a = float4(0,0,0,1);", gshade.LangHLSL); err != nil {
		t.Fatal(err)
	}
}

func TestDebugPixelSource(t *testing.T) {
	src := glbuild.DebugPixelSource()
	if !strings.HasPrefix(src, glbuild.VersionStr) || !strings.Contains(src, "uniform vec4 "+glbuild.DebugColorUniform+";") {
		t.Fatal("unexpected debug source\n", src)
	}
	if !strings.Contains(src, "outputPS0 = "+glbuild.DebugColorUniform) {
		t.Fatal("debug output not written\n", src)
	}
}
