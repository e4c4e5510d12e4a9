// Package glbuild implements the source-level passes of shader compilation:
// #include expansion, macro injection, unsupported construct detection and
// the rewrites applied to GLSL produced by the SPIR-V cross-compiler so that
// independently compiled stages link by name.
package glbuild

import (
	"strconv"
	"strings"
)

// TargetVersion is the GLSL version every pass is compiled to.
const TargetVersion = 330

// VersionStr is the #version directive of generated GLSL.
const VersionStr = "#version 330\n"

// Names of the macros identifying the engine to shader code.
const (
	MacroPlatform = "GSHADE_GL"
	MacroVersion  = "GSHADE_VERSION"
)

// DebugColorUniform is the uniform written by the debug pixel stage.
const DebugColorUniform = "gshadeDebugColor"

func AppendDefineDecl(b []byte, aliasToDefine, aliasReplace string) []byte {
	b = append(b, "#define "...)
	b = append(b, aliasToDefine...)
	if aliasReplace != "" {
		b = append(b, ' ')
		b = append(b, aliasReplace...)
	}
	b = append(b, '\n')
	return b
}

func AppendUniformDecl(b []byte, typename, varname string) []byte {
	b = append(b, "uniform "...)
	b = append(b, typename...)
	b = append(b, ' ')
	b = append(b, varname...)
	b = append(b, ';', '\n')
	return b
}

// AppendLinkageName appends the positional linkage name, i.e. outputVS3.
func AppendLinkageName(b []byte, prefix string, slot int) []byte {
	b = append(b, prefix...)
	b = strconv.AppendInt(b, int64(slot), 10)
	return b
}

// versionLine returns the byte range of the first line starting with a #version
// directive. end points past the line's newline, or to len(text) if there is none.
func versionLine(text string) (start, end int, ok bool) {
	off := 0
	for off < len(text) {
		line, _, found := strings.Cut(text[off:], "\n")
		if isDirective(line, "version") {
			end = off + len(line)
			if found {
				end++
			}
			return off, end, true
		}
		if !found {
			break
		}
		off += len(line) + 1
	}
	return 0, 0, false
}

// isDirective reports whether line is the preprocessor directive name,
// allowing whitespace before and after the '#'.
func isDirective(line, name string) bool {
	_, ok := directiveArgs(line, name)
	return ok
}

func directiveArgs(line, name string) (args string, ok bool) {
	line = strings.TrimLeft(line, " \t")
	if len(line) == 0 || line[0] != '#' {
		return "", false
	}
	line = strings.TrimLeft(line[1:], " \t")
	if !strings.HasPrefix(line, name) {
		return "", false
	}
	rest := line[len(name):]
	if len(rest) > 0 && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '"' && rest[0] != '<' && rest[0] != '\r' {
		return "", false // i.e. "#versionx", "#includes".
	}
	return strings.TrimSpace(rest), true
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// renameIdentifiers replaces every whole identifier found in names in a single
// pass, so renames never chain into each other.
func renameIdentifiers(text string, names map[string]string) string {
	if len(names) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	i := 0
	for i < len(text) {
		c := text[i]
		if !isIdentByte(c) || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			i++
			if '0' <= c && c <= '9' {
				// Skip numeric literal suffixes like 1.0f or 0x1F.
				for i < len(text) && isIdentByte(text[i]) {
					b.WriteByte(text[i])
					i++
				}
			}
			continue
		}
		start := i
		for i < len(text) && isIdentByte(text[i]) {
			i++
		}
		ident := text[start:i]
		if repl, ok := names[ident]; ok {
			b.WriteString(repl)
		} else {
			b.WriteString(ident)
		}
	}
	return b.String()
}

// countLines returns the number of newline separated lines in s.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}
