package transpile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattn/go-shellwords"
	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glbuild"
)

// Runner runs an external tool and returns its combined output.
type Runner interface {
	Run(ctx context.Context, argv []string) (output []byte, err error)
}

// ExecRunner runs tools as child processes.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	return cmd.CombinedOutput()
}

// commandArgs splits a command template into its arguments with shell quoting rules.
func commandArgs(template string) ([]string, error) {
	args, err := shellwords.Parse(template)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", template, err)
	} else if len(args) == 0 {
		return nil, errors.New("empty tool command")
	}
	return args, nil
}

func frontEndStage(s gshade.Stage) string {
	switch s {
	case gshade.StageVertex:
		return "vert"
	case gshade.StageGeometry:
		return "geom"
	case gshade.StageCompute:
		return "comp"
	}
	return "frag"
}

// frontEnd compiles HLSL or Vulkan GLSL text to SPIR-V targeting Vulkan 1.0,
// which produces SPIR-V 1.0. On failure the tool output is returned for diagnostics.
func (tc *Transcompiler) frontEnd(ctx context.Context, text string, unit *gshade.ShaderSourceUnit, macros []gshade.Macro) (words []uint32, toolOutput string, err error) {
	argv, err := commandArgs(tc.cfg.Settings.FrontEndCommand)
	if err != nil {
		return nil, "", err
	}
	dir, err := os.MkdirTemp(tc.cfg.Settings.WorkDir, "gshade-fe-*")
	if err != nil {
		return nil, "", err
	}
	defer os.RemoveAll(dir)
	ext := ".glsl"
	if unit.Language == gshade.LangHLSL {
		ext = ".hlsl"
	}
	pathin := filepath.Join(dir, "input"+ext)
	pathout := filepath.Join(dir, "output.spv")
	err = os.WriteFile(pathin, []byte(text), 0600)
	if err != nil {
		return nil, "", err
	}
	argv = append(argv,
		"-V",
		"--target-env", "vulkan1.0",
		"-S", frontEndStage(unit.Stage),
	)
	entry := unit.EntryOrMain()
	if unit.Language == gshade.LangHLSL {
		argv = append(argv, "-D", "-e", entry)
		argv = glbuild.AppendFrontEndDefines(argv, macros)
	} else if entry != "main" {
		argv = append(argv, "-e", "main", "--source-entrypoint", entry)
	}
	argv = append(argv, "-o", pathout, pathin)

	ctx, cancel := context.WithTimeout(ctx, tc.cfg.Settings.ToolTimeoutDuration())
	defer cancel()
	out, err := tc.runner.Run(ctx, argv)
	if err != nil {
		return nil, string(out), fmt.Errorf("%w: %w", gshade.ErrParse, err)
	}
	compiled, err := os.ReadFile(pathout)
	if err != nil {
		return nil, string(out), fmt.Errorf("reading front-end output: %w", err)
	}
	words, err = Words(compiled)
	return words, string(out), err
}

// crossCompile converts SPIR-V to desktop GLSL using the cross-compiler tool.
func (tc *Transcompiler) crossCompile(ctx context.Context, spirv []uint32, stage gshade.Stage, entry string) (string, error) {
	argv, err := commandArgs(tc.cfg.Settings.CrossCommand)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(tc.cfg.Settings.WorkDir, "gshade-cc-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)
	pathin := filepath.Join(dir, "input.spv")
	pathout := filepath.Join(dir, "output.glsl")
	err = os.WriteFile(pathin, Bytes(spirv), 0600)
	if err != nil {
		return "", err
	}
	argv = append(argv,
		"--version", "330",
		"--no-es",
		"--no-420pack-extension",
		"--stage", frontEndStage(stage),
	)
	if entry != "" {
		argv = append(argv, "--entry", entry)
	}
	argv = append(argv, "--output", pathout, pathin)

	ctx, cancel := context.WithTimeout(ctx, tc.cfg.Settings.ToolTimeoutDuration())
	defer cancel()
	out, err := tc.runner.Run(ctx, argv)
	if err != nil {
		return "", fmt.Errorf("cross-compiling SPIR-V: %w\n%s", err, out)
	}
	glsl, err := os.ReadFile(pathout)
	if err != nil {
		return "", fmt.Errorf("reading cross-compiler output: %w", err)
	}
	return string(glsl), nil
}
