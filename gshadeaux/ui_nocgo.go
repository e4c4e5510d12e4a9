//go:build tinygo || !cgo

package gshadeaux

import (
	"context"
	"errors"

	"github.com/soypat/gshade"
	"github.com/soypat/gshade/gldevice"
	"github.com/soypat/gshade/glrender"
)

// View requires CGo.
func View(ctx context.Context, pl *gshade.Pipeline, cfg ViewerConfig, setup func(dev *gldevice.Device) (*glrender.Renderer, error)) error {
	return errors.New("require cgo for viewer")
}
