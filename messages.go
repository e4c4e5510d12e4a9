package gshade

import (
	"errors"
	"strconv"
	"sync"
)

// Severity of a diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityMessage
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityMessage:
		return "message"
	}
	return "severity(?)"
}

// Diagnostic is a structured compiler message attributed to a pipeline item
// (Group) and a stage. Line is -1 when unknown.
type Diagnostic struct {
	Severity Severity
	Group    string
	Text     string
	Line     int
	Stage    Stage
}

// Error implements the error interface so diagnostics can be joined into errors.
func (d Diagnostic) Error() string {
	b := make([]byte, 0, len(d.Group)+len(d.Text)+32)
	b = append(b, d.Group...)
	b = append(b, '[')
	b = append(b, d.Stage.String()...)
	if d.Line >= 0 {
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(d.Line), 10)
	}
	b = append(b, "] "...)
	b = append(b, d.Severity.String()...)
	b = append(b, ": "...)
	b = append(b, d.Text...)
	return string(b)
}

// DiagnosticSink receives the diagnostics produced by compilation.
type DiagnosticSink interface {
	Add(sev Severity, group, text string, line int, stage Stage)
	ClearGroup(group string)
	// SetCurrentItem is called before compiling each pipeline item.
	SetCurrentItem(name string, kind ItemKind)
}

var _ DiagnosticSink = (*MessageStack)(nil) // Interface implementation compile-time check.

// MessageStack is an in-memory [DiagnosticSink] safe for concurrent use.
type MessageStack struct {
	mu              sync.Mutex
	msgs            []Diagnostic
	currentItem     string
	currentItemKind ItemKind
}

func (ms *MessageStack) Add(sev Severity, group, text string, line int, stage Stage) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.msgs = append(ms.msgs, Diagnostic{
		Severity: sev,
		Group:    group,
		Text:     text,
		Line:     line,
		Stage:    stage,
	})
}

func (ms *MessageStack) ClearGroup(group string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	n := 0
	for _, m := range ms.msgs {
		if m.Group != group {
			ms.msgs[n] = m
			n++
		}
	}
	ms.msgs = ms.msgs[:n]
}

func (ms *MessageStack) SetCurrentItem(name string, kind ItemKind) {
	ms.mu.Lock()
	ms.currentItem = name
	ms.currentItemKind = kind
	ms.mu.Unlock()
}

// CurrentItem returns the item last set with SetCurrentItem.
func (ms *MessageStack) CurrentItem() (name string, kind ItemKind) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.currentItem, ms.currentItemKind
}

// Clear removes all diagnostics.
func (ms *MessageStack) Clear() {
	ms.mu.Lock()
	ms.msgs = ms.msgs[:0]
	ms.mu.Unlock()
}

// Messages appends all stored diagnostics to dst.
func (ms *MessageStack) Messages(dst []Diagnostic) []Diagnostic {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append(dst, ms.msgs...)
}

// Count returns the number of diagnostics of severity sev in group.
// An empty group matches every group.
func (ms *MessageStack) Count(group string, sev Severity) (n int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, m := range ms.msgs {
		if m.Severity == sev && (group == "" || m.Group == group) {
			n++
		}
	}
	return n
}

// Err joins all error diagnostics into a single error, or returns nil if there are none.
func (ms *MessageStack) Err() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var errs []error
	for _, m := range ms.msgs {
		if m.Severity == SeverityError {
			errs = append(errs, m)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
