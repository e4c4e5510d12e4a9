// Package gldevice implements [glrender.Device] on OpenGL 4.6 core.
//
// Every call must happen on the goroutine whose OS thread holds the current
// OpenGL context, see [runtime.LockOSThread]. Without CGo all operations fail.
package gldevice

import (
	"errors"

	"github.com/soypat/gshade/glrender"
)

var _ glrender.Device = (*Device)(nil) // Interface implementation compile-time check.

var errNoCGO = errors.New("OpenGL device requires CGo and is not supported on TinyGo")

// Vertex attribute locations used by meshes created with [Device.NewMesh].
const (
	AttribPosition = 0
	AttribNormal   = 1
)
