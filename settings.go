package gshade

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Settings configures the compilation engine. The zero value is not usable;
// start from [DefaultSettings] or [LoadSettings].
type Settings struct {
	// IncludePaths are searched in order for #include directives, before ".".
	IncludePaths []string `toml:"include_paths"`
	// FrontEndCommand invokes the GLSL/HLSL to SPIR-V front-end. It is split
	// with shell quoting rules; the engine appends its own arguments.
	FrontEndCommand string `toml:"frontend_command"`
	// CrossCommand invokes the SPIR-V to GLSL cross-compiler.
	CrossCommand string `toml:"cross_command"`
	// WorkDir holds temporary files for tool invocations. Empty uses the OS temporary directory.
	WorkDir string `toml:"work_dir"`
	// ToolTimeout bounds a single external tool invocation in seconds.
	ToolTimeout float64 `toml:"tool_timeout"`
	// Debounce is the minimum time in seconds between pipeline diffs when the item count is unchanged.
	Debounce float64 `toml:"debounce"`
	// DebugPrimitiveGroup is the number of primitives per batch during vertex picking.
	DebugPrimitiveGroup int `toml:"debug_primitive_group"`
	// DebugInstanceGroup is the number of instances per batch during instance picking.
	DebugInstanceGroup int `toml:"debug_instance_group"`
	// Samples is the default MSAA sample count for pass render targets.
	Samples int `toml:"samples"`
}

// DefaultSettings returns the settings used when no configuration file is present.
func DefaultSettings() Settings {
	return Settings{
		FrontEndCommand:     "glslangValidator",
		CrossCommand:        "spirv-cross",
		ToolTimeout:         10,
		Debounce:            0.5,
		DebugPrimitiveGroup: 256,
		DebugInstanceGroup:  256,
		Samples:             1,
	}
}

// LoadSettings reads TOML settings from r. Fields absent from r keep their default value.
func LoadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	err := dec.Decode(&s)
	if err != nil {
		return Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return s, s.Validate()
}

// WriteSettings encodes s as TOML to w.
func WriteSettings(w io.Writer, s Settings) error {
	return toml.NewEncoder(w).Encode(s)
}

// Validate checks that the settings are usable by the engine.
func (s Settings) Validate() error {
	var errs []error
	if s.Debounce < 0 {
		errs = append(errs, errors.New("negative debounce"))
	}
	if s.ToolTimeout <= 0 {
		errs = append(errs, errors.New("tool timeout must be positive"))
	}
	if s.DebugPrimitiveGroup < 1 {
		errs = append(errs, errors.New("debug primitive group must be at least 1"))
	}
	if s.DebugInstanceGroup < 1 {
		errs = append(errs, errors.New("debug instance group must be at least 1"))
	}
	if s.Samples < 0 || s.Samples > 32 {
		errs = append(errs, fmt.Errorf("invalid MSAA sample count %d", s.Samples))
	}
	return errors.Join(errs...)
}

// DebounceDuration returns Debounce as a [time.Duration].
func (s Settings) DebounceDuration() time.Duration {
	return time.Duration(s.Debounce * float64(time.Second))
}

// ToolTimeoutDuration returns ToolTimeout as a [time.Duration].
func (s Settings) ToolTimeoutDuration() time.Duration {
	return time.Duration(s.ToolTimeout * float64(time.Second))
}
