package gshade

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SourceProvider supplies raw shader text to the engine.
type SourceProvider interface {
	// LoadProjectFile returns the contents of path, which may be relative to the project path.
	LoadProjectFile(path string) (string, error)
	// ProjectPath returns the directory relative paths are resolved against.
	ProjectPath() string
	// IncludePaths returns the configured include search directories in order.
	IncludePaths() []string
}

// BindingSupplier supplies the resources bound to a pass at draw time.
// The returned handles are owned by the supplier.
type BindingSupplier interface {
	GetBindList(pass ItemHandle) []uint32
	GetUniformBindList(pass ItemHandle) []uint32
}

var _ SourceProvider = (*DirSource)(nil) // Interface implementation compile-time check.

// DirSource is a [SourceProvider] backed by a project directory on disk.
// Overlays take precedence over files on disk, which lets editors compile
// unsaved text through the same include machinery.
type DirSource struct {
	Dir      string
	Includes []string

	mu       sync.RWMutex
	overlays map[string]string
}

// NewDirSource returns a source provider rooted at dir.
func NewDirSource(dir string, includePaths ...string) *DirSource {
	return &DirSource{Dir: dir, Includes: includePaths}
}

func (ds *DirSource) LoadProjectFile(path string) (string, error) {
	full := ds.resolve(path)
	ds.mu.RLock()
	text, ok := ds.overlays[full]
	ds.mu.RUnlock()
	if ok {
		return text, nil
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	return string(b), nil
}

func (ds *DirSource) ProjectPath() string { return ds.Dir }

func (ds *DirSource) IncludePaths() []string { return ds.Includes }

// SetOverlay makes LoadProjectFile return text for path instead of reading disk.
func (ds *DirSource) SetOverlay(path, text string) {
	full := ds.resolve(path)
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.overlays == nil {
		ds.overlays = make(map[string]string)
	}
	ds.overlays[full] = text
}

// ClearOverlay removes the overlay for path.
func (ds *DirSource) ClearOverlay(path string) {
	full := ds.resolve(path)
	ds.mu.Lock()
	delete(ds.overlays, full)
	ds.mu.Unlock()
}

func (ds *DirSource) resolve(path string) string {
	if filepath.IsAbs(path) || ds.Dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(ds.Dir, path)
}
