package glbuild

import (
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/soypat/gshade"
)

// RecursiveIncludeMsg is the diagnostic text reported for include cycles.
const RecursiveIncludeMsg = "Recursive #include detected"

// IncludeResolver expands #include directives. Files are searched for in the
// provider's include paths and then in ".", all relative to the project path
// unless absolute.
type IncludeResolver struct {
	Source gshade.SourceProvider
	// Sink receives cycle diagnostics. May be nil.
	Sink  gshade.DiagnosticSink
	Group string
	Stage gshade.Stage
	Log   *slog.Logger
}

// Resolve returns text with every line-leading #include "X" or #include <X>
// replaced by the resolved contents of X. includeStack holds the paths of the
// files currently being expanded, usually just the path of text itself.
// lineBias is increased by the number of lines added by expansion.
//
// A path already present in includeStack is reported once with
// [RecursiveIncludeMsg] and its directive line is left blank, which bounds
// recursion by the number of distinct files. A file not found in any search
// directory is skipped without a diagnostic.
func (r *IncludeResolver) Resolve(text string, includeStack []string, lineBias *int) string {
	if !strings.Contains(text, "include") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	lineno := 0
	rest := text
	for len(rest) > 0 {
		line, after, hasNL := strings.Cut(rest, "\n")
		rest = after
		lineno++
		name, ok := includeName(line)
		if !ok {
			b.WriteString(line)
			if hasNL {
				b.WriteByte('\n')
			}
			continue
		}
		expanded, found := r.expand(name, includeStack, lineno)
		if found && expanded != "" {
			expanded = strings.TrimSuffix(expanded, "\n")
			b.WriteString(expanded)
			if lineBias != nil {
				*lineBias += strings.Count(expanded, "\n")
			}
		}
		if hasNL {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (r *IncludeResolver) expand(name string, includeStack []string, lineno int) (string, bool) {
	log := gshade.LoggerOrNop(r.Log)
	for _, candidate := range r.searchPaths(name) {
		if stackContains(includeStack, candidate) {
			if r.Sink != nil {
				line := -1
				if len(includeStack) <= 1 {
					line = lineno
				}
				r.Sink.Add(gshade.SeverityError, r.Group, RecursiveIncludeMsg, line, r.Stage)
			}
			log.Warn("recursive include", slog.String("file", candidate), slog.Int("depth", len(includeStack)))
			return "", false
		}
		src, err := r.Source.LoadProjectFile(candidate)
		if err != nil {
			continue
		}
		stack := append(includeStack[:len(includeStack):len(includeStack)], candidate)
		var discard int
		return r.Resolve(src, stack, &discard), true
	}
	log.Debug("include not found", slog.String("name", name))
	return "", false
}

func (r *IncludeResolver) searchPaths(name string) []string {
	if filepath.IsAbs(name) {
		return []string{filepath.Clean(name)}
	}
	dirs := r.Source.IncludePaths()
	paths := make([]string, 0, len(dirs)+1)
	for _, dir := range dirs {
		paths = append(paths, filepath.Clean(filepath.Join(dir, name)))
	}
	return append(paths, path.Clean(name))
}

func stackContains(stack []string, p string) bool {
	for _, s := range stack {
		if filepath.Clean(s) == p {
			return true
		}
	}
	return false
}

// includeName parses an #include directive at the start of line.
func includeName(line string) (string, bool) {
	args, ok := directiveArgs(line, "include")
	if !ok || len(args) < 2 {
		return "", false
	}
	var closing byte
	switch args[0] {
	case '"':
		closing = '"'
	case '<':
		closing = '>'
	default:
		return "", false
	}
	end := strings.IndexByte(args[1:], closing)
	if end <= 0 {
		return "", false
	}
	return args[1 : end+1], true
}
