// Package gshadeaux holds auxiliary tooling for hosting a gshade pipeline:
// YAML pipeline manifests, a file watcher that requests recompiles on save,
// and a minimal GLFW viewer. Applications with their own editor or window
// management should use the gshade packages directly.
package gshadeaux

import (
	"errors"
	"log/slog"

	"github.com/soypat/gshade"
	"github.com/soypat/gshade/glrender"
)

// ViewerConfig configures [View].
type ViewerConfig struct {
	Width, Height int
	Title         string
	// Output is the name of the shader pass whose target is shown. Empty
	// shows the last shader pass of the pipeline.
	Output string
	// OnPick is called after a left click picks a drawable. May be nil.
	OnPick func(hit glrender.PickResult, ok bool)
	Log    *slog.Logger
}

func (cfg ViewerConfig) Validate() error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return errors.New("viewer needs positive width and height")
	}
	return nil
}

// outputHandle returns the pass to display.
func outputHandle(pl *gshade.Pipeline, name string) (gshade.ItemHandle, bool) {
	if name != "" {
		return pl.Find(name)
	}
	var last gshade.ItemHandle
	found := false
	for _, h := range pl.Items(nil) {
		if item, _ := pl.Get(h); item.Kind() == gshade.KindShaderPass {
			last, found = h, true
		}
	}
	return last, found
}
