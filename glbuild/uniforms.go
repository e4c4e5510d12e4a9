package glbuild

import (
	"regexp"
	"strings"
)

// blockStart matches the head of a uniform block declaration, for example
//
//	layout(binding = 0, std140) uniform type_Globals
//	{
var blockStart = regexp.MustCompile(`(?m)^[ \t]*(?:layout[ \t]*\([^)]*\)[ \t]*)?uniform[ \t]+(\w+)\s*\{`)

var memberLayout = regexp.MustCompile(`^layout[ \t]*\([^)]*\)[ \t]*`)

// FlattenUniformBlocks rewrites every uniform block into loose uniform
// declarations, one per member, and strips the block instance prefix from all
// member accesses. The runtime binds individual uniform locations instead of
// buffer ranges. Sampler declarations are never blocks and are left as is.
func FlattenUniformBlocks(text string) string {
	for {
		loc := blockStart.FindStringSubmatchIndex(text)
		if loc == nil {
			return text
		}
		bodyStart := loc[1]
		closing := strings.IndexByte(text[bodyStart:], '}')
		if closing < 0 {
			return text // Malformed, leave for the driver to report.
		}
		closing += bodyStart
		semi := strings.IndexByte(text[closing:], ';')
		if semi < 0 {
			return text
		}
		semi += closing
		instance := strings.TrimSpace(text[closing+1 : semi])
		if i := strings.IndexByte(instance, '['); i >= 0 {
			instance = "" // Arrays of blocks cannot be flattened by name.
		}

		var b strings.Builder
		b.WriteString(text[:loc[0]])
		for _, member := range strings.Split(text[bodyStart:closing], ";") {
			member = strings.TrimSpace(member)
			if member == "" {
				continue
			}
			member = memberLayout.ReplaceAllString(member, "")
			b.WriteString("uniform ")
			b.WriteString(member)
			b.WriteString(";\n")
		}
		body := text[semi+1:]
		body = strings.TrimPrefix(body, "\n")
		if instance != "" {
			body = stripInstance(body, instance)
		}
		b.WriteString(body)
		text = b.String()
	}
}

// stripInstance removes "instance." where instance is a whole identifier.
func stripInstance(text, instance string) string {
	var b strings.Builder
	b.Grow(len(text))
	prefix := instance + "."
	for {
		i := strings.Index(text, prefix)
		if i < 0 {
			b.WriteString(text)
			return b.String()
		}
		if i > 0 && (isIdentByte(text[i-1]) || text[i-1] == '.') {
			b.WriteString(text[:i+len(prefix)])
			text = text[i+len(prefix):]
			continue
		}
		b.WriteString(text[:i])
		text = text[i+len(prefix):]
	}
}
