package gshadeaux

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/soypat/gshade"
)

// Recompiler accepts recompile requests from any goroutine.
// [*glrender.Renderer] implements it.
type Recompiler interface {
	QueueRecompile(name string)
}

// WatcherConfig configures a [Watcher].
type WatcherConfig struct {
	// Dir is the project directory relative paths in Files are resolved against.
	Dir string
	// Files maps shader file paths to the pipeline items using them,
	// see [Manifest.SourceFiles].
	Files map[string][]string
	// IncludeDirs are watched too. A change to a shader file not in Files,
	// such as an included header, recompiles every item.
	IncludeDirs []string
	Target      Recompiler
	// Debounce is how long the watcher waits for writes to settle before
	// requesting recompiles. Editors often write a file several times per save.
	Debounce time.Duration
	Log      *slog.Logger
}

// Watcher requests recompiles of pipeline items when their shader files change.
type Watcher struct {
	cfg     WatcherConfig
	w       *fsnotify.Watcher
	log     *slog.Logger
	byPath  map[string][]string
	allItem []string
}

// NewWatcher starts watching the directories holding cfg.Files and cfg.IncludeDirs.
// Call Run to process events.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Target == nil {
		return nil, errors.New("nil recompile target")
	} else if len(cfg.Files) == 0 {
		return nil, errors.New("no files to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg:    cfg,
		w:      fw,
		log:    gshade.LoggerOrNop(cfg.Log),
		byPath: make(map[string][]string, len(cfg.Files)),
	}
	dirs := make(map[string]bool)
	seen := make(map[string]bool)
	for path, names := range cfg.Files {
		full := w.abs(path)
		w.byPath[full] = names
		dirs[filepath.Dir(full)] = true
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				w.allItem = append(w.allItem, name)
			}
		}
	}
	for _, dir := range cfg.IncludeDirs {
		dirs[w.abs(dir)] = true
	}
	for dir := range dirs {
		if err = fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) abs(path string) string {
	if !filepath.IsAbs(path) && w.cfg.Dir != "" {
		path = filepath.Join(w.cfg.Dir, path)
	}
	return filepath.Clean(path)
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			names := w.itemsFor(event.Name)
			if len(names) == 0 {
				continue
			}
			w.log.Debug("shader changed", slog.String("file", event.Name), slog.Int("items", len(names)))
			for _, name := range names {
				pending[name] = true
			}
			timer.Reset(w.cfg.Debounce)

		case <-timer.C:
			for name := range pending {
				w.cfg.Target.QueueRecompile(name)
				delete(pending, name)
			}

		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", slog.String("err", err.Error()))
		}
	}
}

func (w *Watcher) itemsFor(path string) []string {
	path = filepath.Clean(path)
	if names, ok := w.byPath[path]; ok {
		return names
	}
	switch filepath.Ext(path) {
	case ".glsl", ".hlsl", ".hlsli", ".vert", ".frag", ".geom", ".comp", ".h", ".inc", ".wgsl":
		return w.allItem
	}
	return nil
}

// Close stops watching. A running Run call returns.
func (w *Watcher) Close() error {
	return w.w.Close()
}
