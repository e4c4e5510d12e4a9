package glbuild

import "github.com/soypat/gshade"

// DebugPixelSource returns the pixel stage linked into debug programs. It
// ignores all inputs and writes [DebugColorUniform].
func DebugPixelSource() string {
	b := make([]byte, 0, 160)
	b = append(b, VersionStr...)
	b = AppendUniformDecl(b, "vec4", DebugColorUniform)
	b = append(b, "out vec4 "...)
	b = AppendLinkageName(b, gshade.StagePixel.LinkagePrefix(), 0)
	b = append(b, ";\nvoid main() {\n\t"...)
	b = AppendLinkageName(b, gshade.StagePixel.LinkagePrefix(), 0)
	b = append(b, " = "...)
	b = append(b, DebugColorUniform...)
	b = append(b, ";\n}\n"...)
	return string(b)
}

// FullscreenVertexSource returns a vertex stage that draws one triangle
// covering the viewport from 3 vertices without any bound buffers.
func FullscreenVertexSource() string {
	return VersionStr + `out vec2 outputVS0;
void main() {
	vec2 uv = vec2((gl_VertexID << 1) & 2, gl_VertexID & 2);
	outputVS0 = uv;
	gl_Position = vec4(uv * 2.0 - 1.0, 0.0, 1.0);
}
`
}
