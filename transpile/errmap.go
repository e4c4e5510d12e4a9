package transpile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/soypat/gshade"
)

var (
	// NVIDIA style: 0(10) : error C1035: assignment of incompatible types
	nvidiaDiag = regexp.MustCompile(`^\s*\d+\((\d+)\)\s*:\s*(?i:(error|warning))\b\s*(?:[A-Z]\d+\s*)?:?\s*(.*)$`)
	// Mesa style: 0:10(5): error: syntax error, unexpected '}'
	mesaDiag = regexp.MustCompile(`^\s*\d+:(\d+)\(\d+\)\s*:\s*(?i:(error|warning))\s*:\s*(.*)$`)
	// Front-end style: ERROR: shaders/a.hlsl:10: 'x' : undeclared identifier
	frontEndDiag = regexp.MustCompile(`^\s*(ERROR|WARNING):\s*(.*?):(\d+):\s*(.*)$`)
)

// ParseDiagnostics converts raw compiler output into diagnostics for group and
// stage. Reported lines are translated by subtracting lineBias; lines that end
// up below 1 are reported as -1. Output lines in no recognized format are ignored.
func ParseDiagnostics(raw, group string, stage gshade.Stage, lineBias int) []gshade.Diagnostic {
	var diags []gshade.Diagnostic
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		d, ok := parseDiagnosticLine(line)
		if !ok {
			continue
		}
		d.Group = group
		d.Stage = stage
		d.Line = mapLine(d.Line, lineBias)
		diags = append(diags, d)
	}
	return diags
}

func parseDiagnosticLine(line string) (d gshade.Diagnostic, ok bool) {
	var lineStr, sev, text string
	if m := frontEndDiag.FindStringSubmatch(line); m != nil {
		sev, lineStr, text = m[1], m[3], m[4]
	} else if m := nvidiaDiag.FindStringSubmatch(line); m != nil {
		lineStr, sev, text = m[1], m[2], m[3]
	} else if m := mesaDiag.FindStringSubmatch(line); m != nil {
		lineStr, sev, text = m[1], m[2], m[3]
	} else {
		return d, false
	}
	n, err := strconv.Atoi(lineStr)
	if err != nil {
		n = -1
	}
	d.Line = n
	d.Text = strings.TrimSpace(text)
	d.Severity = gshade.SeverityError
	if strings.EqualFold(sev, "warning") {
		d.Severity = gshade.SeverityWarning
	}
	return d, true
}

func mapLine(line, bias int) int {
	if line < 0 {
		return -1
	}
	line -= bias
	if line < 1 {
		return -1
	}
	return line
}

// firstLine returns the first non-empty line of s, used for generic failure diagnostics.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
