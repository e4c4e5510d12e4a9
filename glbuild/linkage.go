package glbuild

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/soypat/gshade"
)

// ioDecl matches a global stage input or output declaration such as
//
//	layout(location = 1) flat out vec4 out_var_COLOR;
//	in vec3 in_var_NORMAL[];
var ioDecl = regexp.MustCompile(`(?m)^[ \t]*(?:layout[ \t]*\(([^)]*)\)[ \t]*)?(?:(?:flat|smooth|noperspective|centroid|invariant)[ \t]+)*(in|out)[ \t]+\w+[ \t]+(\w+)[ \t]*(?:\[[^\]]*\])?[ \t]*;`)

var locationArg = regexp.MustCompile(`location[ \t]*=[ \t]*(\d+)`)

// LinkDecl is a stage input or output declaration.
type LinkDecl struct {
	Name string
	Slot int
}

// LinkageDecls returns the names of the global in (dir="in") or out (dir="out")
// declarations of text with their slot: the layout location if present,
// otherwise the declaration index.
func LinkageDecls(text, dir string) (decls []LinkDecl) {
	idx := 0
	for _, m := range ioDecl.FindAllStringSubmatch(text, -1) {
		if m[2] != dir {
			continue
		}
		slot := idx
		if loc := locationArg.FindStringSubmatch(m[1]); loc != nil {
			slot, _ = strconv.Atoi(loc[1])
		}
		decls = append(decls, LinkDecl{Name: m[3], Slot: slot})
		idx++
	}
	return decls
}

// RenameLinkage renames cross-compiled stage outputs to output{VS|PS|GS}{slot}
// and stage inputs to the naming of the stage producing them, so stages that
// were compiled independently link by name. Vertex stage inputs are vertex
// attributes and are left untouched.
func RenameLinkage(text string, stage gshade.Stage, usesGeometry bool) string {
	names := make(map[string]string)
	for _, d := range LinkageDecls(text, "out") {
		if strings.HasPrefix(d.Name, "gl_") {
			continue
		}
		names[d.Name] = string(AppendLinkageName(nil, stage.LinkagePrefix(), d.Slot))
	}
	var producer gshade.Stage
	hasProducer := true
	switch stage {
	case gshade.StagePixel:
		producer = gshade.StageVertex
		if usesGeometry {
			producer = gshade.StageGeometry
		}
	case gshade.StageGeometry, gshade.StageAudio:
		producer = gshade.StageVertex
	default:
		hasProducer = false
	}
	if hasProducer {
		for _, d := range LinkageDecls(text, "in") {
			if strings.HasPrefix(d.Name, "gl_") {
				continue
			}
			names[d.Name] = string(AppendLinkageName(nil, producer.LinkagePrefix(), d.Slot))
		}
	}
	return renameIdentifiers(text, names)
}

var funcDecl = regexp.MustCompile(`(?m)^[ \t]*void[ \t]+(\w+)[ \t]*\([ \t]*(?:void)?[ \t]*\)`)

// RenameEntry renames the parameterless void function entry to main. If text
// already defines main or does not define entry it is returned unchanged.
func RenameEntry(text, entry string) string {
	if entry == "" || entry == "main" {
		return text
	}
	var hasMain, hasEntry bool
	for _, m := range funcDecl.FindAllStringSubmatch(text, -1) {
		hasMain = hasMain || m[1] == "main"
		hasEntry = hasEntry || m[1] == entry
	}
	if hasMain || !hasEntry {
		return text
	}
	return renameIdentifiers(text, map[string]string{entry: "main"})
}

// CombinedSamplerPrefix is the prefix the cross-compiler gives to samplers it
// builds from separate texture and sampler objects.
const CombinedSamplerPrefix = "SPIRV_Cross_Combined"

var combinedDecl = regexp.MustCompile(`uniform[ \t]+\w+[ \t]+(` + CombinedSamplerPrefix + `\w*)[ \t]*;`)

// RenameCombinedSamplers renames combined texture+sampler uniforms after the
// texture they sample, so host code binds them by texture name. textures are
// the separate texture names found in the SPIR-V module. When a texture is
// combined with several samplers the later ones are suffixed with the sampler part.
func RenameCombinedSamplers(text string, textures []string) string {
	names := make(map[string]string)
	used := make(map[string]bool)
	for _, m := range combinedDecl.FindAllStringSubmatch(text, -1) {
		combined := m[1]
		rest := combined[len(CombinedSamplerPrefix):]
		best := ""
		for _, tex := range textures {
			if strings.HasPrefix(rest, tex) && len(tex) > len(best) {
				best = tex
			}
		}
		if best == "" {
			continue
		}
		name := best
		if used[name] {
			name = best + "_" + strings.TrimPrefix(rest[len(best):], "_")
		}
		used[name] = true
		names[combined] = name
	}
	return renameIdentifiers(text, names)
}
