// Package gshade holds the data model shared by the shader transcompilation
// and program cache packages: pipeline items, shader source units, macros,
// diagnostics and the collaborator interfaces the engine consumes.
package gshade

import (
	"errors"
	"path/filepath"
	"strings"
)

// Version is the engine version injected into every shader that has macros.
const Version = 10400

// Sentinel errors used to classify compilation failures. They are recovered
// locally into diagnostics and never abort compilation of sibling items.
var (
	ErrSourceUnreadable     = errors.New("shader source unreadable")
	ErrParse                = errors.New("parse failure")
	ErrLink                 = errors.New("link failure")
	ErrUnsupportedConstruct = errors.New("unsupported construct for front-end")
	ErrEmptySource          = errors.New("empty generated source")
)

// Language is the surface language a shader source unit is written in.
type Language uint8

const (
	LangGLSL Language = iota
	LangHLSL
	// LangVulkanGLSL is GLSL written against Vulkan semantics which must be
	// compiled to SPIR-V and cross-compiled back to desktop GLSL.
	LangVulkanGLSL
	// LangPlugin marks a unit whose compilation is delegated to a [PluginCompiler]
	// resolved by the source file extension.
	LangPlugin
)

func (l Language) String() string {
	switch l {
	case LangGLSL:
		return "GLSL"
	case LangHLSL:
		return "HLSL"
	case LangVulkanGLSL:
		return "VulkanGLSL"
	case LangPlugin:
		return "Plugin"
	}
	return "Language(?)"
}

// NeedsTranscompile reports whether the language must go through SPIR-V
// before it can be handed to the GL driver.
func (l Language) NeedsTranscompile() bool { return l != LangGLSL }

// LanguageFromPath guesses a unit's language from its file extension.
// Extensions not known to the engine map to [LangPlugin].
func LanguageFromPath(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glsl", ".vert", ".frag", ".geom", ".comp", ".vs", ".fs", ".gs":
		return LangGLSL
	case ".hlsl", ".fx":
		return LangHLSL
	case ".vkglsl", ".vkvert", ".vkfrag", ".vkgeom", ".vkcomp":
		return LangVulkanGLSL
	}
	return LangPlugin
}

// Stage is a shader pipeline stage. Its value is the stage index reported in diagnostics.
type Stage uint8

const (
	StageVertex Stage = iota
	StagePixel
	StageGeometry
	StageCompute
	StageAudio
	// StageCount is the number of stage slots in a compiled artifact.
	StageCount = iota
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StagePixel:
		return "pixel"
	case StageGeometry:
		return "geometry"
	case StageCompute:
		return "compute"
	case StageAudio:
		return "audio"
	}
	return "stage(?)"
}

// LinkagePrefix returns the identifier prefix used for the stage's outputs
// after cross-compilation, i.e. "outputVS" for the vertex stage.
func (s Stage) LinkagePrefix() string {
	switch s {
	case StageVertex:
		return "outputVS"
	case StagePixel, StageAudio:
		return "outputPS"
	case StageGeometry:
		return "outputGS"
	case StageCompute:
		return "outputCS"
	}
	return "output"
}

// Macro is a preprocessor definition injected after the #version directive.
// Inactive macros are kept in the list but never emitted.
type Macro struct {
	Name   string
	Value  string
	Active bool
}

// ShaderSourceUnit describes one stage of a pass. Either Path or Inline is set;
// Inline text takes precedence when both are present.
type ShaderSourceUnit struct {
	Path     string
	Inline   string
	Language Language
	Entry    string
	Stage    Stage
	Macros   []Macro
}

// IsZero reports whether the unit references no source at all.
func (u *ShaderSourceUnit) IsZero() bool {
	return u == nil || (u.Path == "" && u.Inline == "")
}

// EntryOrMain returns the entry point name, defaulting to "main".
func (u *ShaderSourceUnit) EntryOrMain() string {
	if u.Entry == "" {
		return "main"
	}
	return u.Entry
}

// ActiveMacros appends the active macros of all lists in order.
func ActiveMacros(dst []Macro, lists ...[]Macro) []Macro {
	for _, list := range lists {
		for _, m := range list {
			if m.Active {
				dst = append(dst, m)
			}
		}
	}
	return dst
}
