package glbuild

import (
	"strconv"

	"github.com/soypat/gshade"
)

// InjectMacros inserts a #define for every active macro right after the first
// #version directive, preceded by the engine identity macros. It returns the
// new text and the number of lines inserted, which callers add to their line bias.
// Text without a #version directive or without active macros is returned unchanged.
//
// InjectMacros must run after include resolution so the definitions are visible
// to the whole translation unit and cannot be shadowed by included files.
func InjectMacros(text string, macros []gshade.Macro) (_ string, inserted int) {
	active := 0
	for i := range macros {
		if macros[i].Active {
			active++
		}
	}
	if active == 0 {
		return text, 0
	}
	_, end, ok := versionLine(text)
	if !ok {
		return text, 0
	}
	b := make([]byte, 0, len(text)+32*(active+2))
	b = append(b, text[:end]...)
	if b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}
	b = AppendDefineDecl(b, MacroPlatform, "1")
	b = AppendDefineDecl(b, MacroVersion, strconv.Itoa(gshade.Version))
	inserted = 2
	for _, m := range macros {
		if !m.Active {
			continue
		}
		b = AppendDefineDecl(b, m.Name, m.Value)
		inserted++
	}
	b = append(b, text[end:]...)
	return string(b), inserted
}

// AppendFrontEndDefines appends command line definitions (-DNAME=VALUE) for
// active macros, the form used by front-ends for sources without #version.
func AppendFrontEndDefines(dst []string, macros []gshade.Macro) []string {
	dst = append(dst, "-D"+MacroPlatform+"=1", "-D"+MacroVersion+"="+strconv.Itoa(gshade.Version))
	for _, m := range macros {
		if !m.Active {
			continue
		}
		if m.Value == "" {
			dst = append(dst, "-D"+m.Name)
		} else {
			dst = append(dst, "-D"+m.Name+"="+m.Value)
		}
	}
	return dst
}
