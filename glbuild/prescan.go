package glbuild

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/soypat/gshade"
)

var (
	hlslEmptyCtor = regexp.MustCompile(`\b(?:float|half|double|int|uint|bool|min16float|min16int)[1-4](?:x[1-4])?[ \t]*\([ \t]*\)`)
	glslEmptyCtor = regexp.MustCompile(`\b(?:[iubd]?vec[2-4]|d?mat[2-4](?:x[2-4])?)[ \t]*\([ \t]*\)`)
)

// UnsupportedError reports a construct known to break a front-end.
type UnsupportedError struct {
	Line      int
	Construct string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("line %d: zero-argument constructor %q is not supported", e.Line, e.Construct)
}

func (e *UnsupportedError) Unwrap() error { return gshade.ErrUnsupportedConstruct }

// Prescan looks for constructs the front-end of lang is known to mishandle
// and returns an [*UnsupportedError] for the first one found.
// Comments are not skipped; the scan is literal.
func Prescan(text string, lang gshade.Language) error {
	var re *regexp.Regexp
	switch lang {
	case gshade.LangHLSL:
		re = hlslEmptyCtor
	case gshade.LangVulkanGLSL:
		re = glslEmptyCtor
	default:
		return nil
	}
	loc := re.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	return &UnsupportedError{
		Line:      strings.Count(text[:loc[0]], "\n") + 1,
		Construct: text[loc[0]:loc[1]],
	}
}
