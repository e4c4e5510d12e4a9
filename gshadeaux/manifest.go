package gshadeaux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gshade"
	"gopkg.in/yaml.v3"
)

// Manifest is a YAML description of a pipeline.
//
//	include_paths: [include]
//	passes:
//	  - name: scene
//	    vs: {path: scene.hlsl, entry: VSMain}
//	    ps: {path: scene.hlsl, entry: PSMain}
//	    drawables:
//	      - {name: box, shape: cube, vertex_count: 36}
type Manifest struct {
	IncludePaths []string   `yaml:"include_paths,omitempty"`
	Passes       []PassDef  `yaml:"passes"`
	Macros       []MacroDef `yaml:"macros,omitempty"`
}

// PassDef describes one pipeline item. Kind defaults to "shader".
type PassDef struct {
	Name       string        `yaml:"name"`
	Kind       string        `yaml:"kind,omitempty"`
	VS         *UnitDef      `yaml:"vs,omitempty"`
	PS         *UnitDef      `yaml:"ps,omitempty"`
	GS         *UnitDef      `yaml:"gs,omitempty"`
	CS         *UnitDef      `yaml:"cs,omitempty"`
	Macros     []MacroDef    `yaml:"macros,omitempty"`
	WorkGroups [3]uint32     `yaml:"workgroups,omitempty"`
	Target     TargetDef     `yaml:"target,omitempty"`
	Drawables  []DrawableDef `yaml:"drawables,omitempty"`
}

// UnitDef describes a shader source unit. Language is inferred from the file
// extension when empty.
type UnitDef struct {
	Path     string     `yaml:"path,omitempty"`
	Inline   string     `yaml:"inline,omitempty"`
	Language string     `yaml:"language,omitempty"`
	Entry    string     `yaml:"entry,omitempty"`
	Macros   []MacroDef `yaml:"macros,omitempty"`
}

// MacroDef is a preprocessor definition. Active defaults to true.
type MacroDef struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value,omitempty"`
	Active *bool  `yaml:"active,omitempty"`
}

type TargetDef struct {
	Samples int        `yaml:"samples,omitempty"`
	Clear   [4]float32 `yaml:"clear,omitempty"`
	NoClear bool       `yaml:"no_clear,omitempty"`
}

// DrawableDef describes a drawable. Its GPU resources are attached by the
// host after the pipeline is built.
type DrawableDef struct {
	Name        string     `yaml:"name"`
	Kind        string     `yaml:"kind,omitempty"`
	Shape       string     `yaml:"shape,omitempty"`
	Topology    string     `yaml:"topology,omitempty"`
	VertexCount int        `yaml:"vertex_count,omitempty"`
	Indexed     bool       `yaml:"indexed,omitempty"`
	Instances   int        `yaml:"instances,omitempty"`
	Hidden      bool       `yaml:"hidden,omitempty"`
	Position    [3]float32 `yaml:"position,omitempty"`
	Rotation    [3]float32 `yaml:"rotation,omitempty"`
	Scale       [3]float32 `yaml:"scale,omitempty"`
	BoundsMin   [3]float32 `yaml:"bounds_min,omitempty"`
	BoundsMax   [3]float32 `yaml:"bounds_max,omitempty"`
}

// ParseManifest decodes a YAML manifest. Unknown fields are an error.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	err := dec.Decode(&m)
	if err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads and parses the manifest file at path.
func LoadManifest(path string) (*Manifest, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return ParseManifest(fp)
}

// Validate checks that every pass has a unique name and the units its kind requires.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, p := range m.Passes {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("pass %d: missing name", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("duplicate pass name %q", p.Name))
		}
		seen[p.Name] = true
		var required []*UnitDef
		switch p.Kind {
		case "", "shader":
			required = []*UnitDef{p.VS, p.PS}
		case "compute":
			required = []*UnitDef{p.CS}
		case "audio":
			required = []*UnitDef{p.PS}
		default:
			errs = append(errs, fmt.Errorf("pass %q: unknown kind %q", p.Name, p.Kind))
		}
		for _, u := range required {
			if u == nil || (u.Path == "" && u.Inline == "") {
				errs = append(errs, fmt.Errorf("pass %q: missing shader source", p.Name))
				break
			}
		}
		for _, d := range p.Drawables {
			if _, err := parseShape(d.Shape); err != nil {
				errs = append(errs, fmt.Errorf("pass %q drawable %q: %w", p.Name, d.Name, err))
			}
			if _, err := parseTopology(d.Topology); err != nil {
				errs = append(errs, fmt.Errorf("pass %q drawable %q: %w", p.Name, d.Name, err))
			}
			if _, err := parseDrawableKind(d.Kind); err != nil {
				errs = append(errs, fmt.Errorf("pass %q drawable %q: %w", p.Name, d.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Build adds the manifest's passes to pl in order and returns their handles.
func (m *Manifest) Build(pl *gshade.Pipeline) ([]gshade.ItemHandle, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	global := macros(m.Macros)
	handles := make([]gshade.ItemHandle, 0, len(m.Passes))
	for _, p := range m.Passes {
		passMacros := append(append([]gshade.Macro{}, global...), macros(p.Macros)...)
		var item gshade.Item
		switch p.Kind {
		case "compute":
			item = &gshade.ComputePass{
				CS:         unit(p.CS, gshade.StageCompute),
				Macros:     passMacros,
				WorkGroups: p.WorkGroups,
			}
		case "audio":
			item = &gshade.AudioPass{PS: unit(p.PS, gshade.StageAudio), Macros: passMacros}
		default:
			sp := &gshade.ShaderPass{
				VS:     unit(p.VS, gshade.StageVertex),
				PS:     unit(p.PS, gshade.StagePixel),
				Macros: passMacros,
				Target: gshade.RenderTarget{Samples: p.Target.Samples, ClearColor: p.Target.Clear, NoClear: p.Target.NoClear},
			}
			if p.GS != nil {
				gs := unit(p.GS, gshade.StageGeometry)
				sp.GS = &gs
			}
			for _, d := range p.Drawables {
				sp.Drawables = append(sp.Drawables, drawable(d))
			}
			item = sp
		}
		h, err := pl.Add(p.Name, item)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// SourceFiles maps every shader file path referenced by the manifest to the
// names of the passes using it.
func (m *Manifest) SourceFiles() map[string][]string {
	files := make(map[string][]string)
	for _, p := range m.Passes {
		for _, u := range []*UnitDef{p.VS, p.PS, p.GS, p.CS} {
			if u == nil || u.Path == "" {
				continue
			}
			path := filepath.Clean(u.Path)
			names := files[path]
			if len(names) == 0 || names[len(names)-1] != p.Name {
				files[path] = append(names, p.Name)
			}
		}
	}
	return files
}

// PassNames returns the names of all passes in order.
func (m *Manifest) PassNames() []string {
	names := make([]string, len(m.Passes))
	for i, p := range m.Passes {
		names[i] = p.Name
	}
	return names
}

func macros(defs []MacroDef) []gshade.Macro {
	var out []gshade.Macro
	for _, d := range defs {
		out = append(out, gshade.Macro{Name: d.Name, Value: d.Value, Active: d.Active == nil || *d.Active})
	}
	return out
}

func unit(def *UnitDef, stage gshade.Stage) gshade.ShaderSourceUnit {
	if def == nil {
		return gshade.ShaderSourceUnit{Stage: stage}
	}
	u := gshade.ShaderSourceUnit{
		Path:   def.Path,
		Inline: def.Inline,
		Entry:  def.Entry,
		Stage:  stage,
		Macros: macros(def.Macros),
	}
	switch strings.ToLower(def.Language) {
	case "glsl":
		u.Language = gshade.LangGLSL
	case "hlsl":
		u.Language = gshade.LangHLSL
	case "vulkan", "vkglsl", "vulkan-glsl":
		u.Language = gshade.LangVulkanGLSL
	case "plugin":
		u.Language = gshade.LangPlugin
	default:
		u.Language = gshade.LanguageFromPath(def.Path)
	}
	return u
}

func drawable(def DrawableDef) *gshade.Drawable {
	kind, _ := parseDrawableKind(def.Kind)
	shape, _ := parseShape(def.Shape)
	topo, _ := parseTopology(def.Topology)
	return &gshade.Drawable{
		Name:          def.Name,
		Kind:          kind,
		Shape:         shape,
		Topology:      topo,
		VertexCount:   def.VertexCount,
		Indexed:       def.Indexed,
		Instanced:     def.Instances > 0,
		InstanceCount: def.Instances,
		Hidden:        def.Hidden,
		Transform: gshade.Transform{
			Position: vec(def.Position),
			Rotation: vec(def.Rotation),
			Scale:    vec(def.Scale),
		},
		Bounds: ms3.Box{Min: vec(def.BoundsMin), Max: vec(def.BoundsMax)},
	}
}

func vec(v [3]float32) ms3.Vec { return ms3.Vec{X: v[0], Y: v[1], Z: v[2]} }

func parseDrawableKind(s string) (gshade.DrawableKind, error) {
	switch s {
	case "", "geometry":
		return gshade.DrawGeometry, nil
	case "model":
		return gshade.DrawModel, nil
	case "vertexbuffer", "buffer":
		return gshade.DrawVertexBuffer, nil
	case "plugin":
		return gshade.DrawPlugin, nil
	}
	return 0, fmt.Errorf("unknown drawable kind %q", s)
}

func parseShape(s string) (gshade.Shape, error) {
	switch s {
	case "":
		return gshade.ShapeNone, nil
	case "cube":
		return gshade.ShapeCube, nil
	case "sphere":
		return gshade.ShapeSphere, nil
	case "plane":
		return gshade.ShapePlane, nil
	case "triangle":
		return gshade.ShapeTriangle, nil
	case "circle":
		return gshade.ShapeCircle, nil
	}
	return 0, fmt.Errorf("unknown shape %q", s)
}

func parseTopology(s string) (gshade.Topology, error) {
	if s == "" {
		return gshade.TopologyTriangles, nil
	}
	for t := gshade.TopologyTriangles; t <= gshade.TopologyPoints; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown topology %q", s)
}
