package glrender

import (
	"testing"

	math "github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gshade"
)

func TestIntersectShapes(t *testing.T) {
	const tol = 1e-4
	towardZ := Ray{Origin: ms3.Vec{Z: -5}, Dir: ms3.Vec{Z: 1}}
	down := Ray{Origin: ms3.Vec{Y: 5}, Dir: ms3.Vec{Y: -1}}
	for _, test := range []struct {
		name  string
		d     gshade.Drawable
		ray   Ray
		wantT float32
		miss  bool
	}{
		{name: "cube", d: gshade.Drawable{Shape: gshade.ShapeCube}, ray: towardZ, wantT: 4.5},
		{name: "scaled cube", d: gshade.Drawable{Shape: gshade.ShapeCube, Transform: gshade.Transform{Scale: ms3.Vec{X: 2, Y: 2, Z: 2}}}, ray: towardZ, wantT: 4},
		{name: "sphere", d: gshade.Drawable{Shape: gshade.ShapeSphere}, ray: towardZ, wantT: 4.5},
		{name: "moved sphere", d: gshade.Drawable{Shape: gshade.ShapeSphere, Transform: gshade.Transform{Position: ms3.Vec{X: 3}}}, ray: towardZ, miss: true},
		{name: "plane", d: gshade.Drawable{Shape: gshade.ShapePlane}, ray: down, wantT: 5},
		{name: "plane edge on", d: gshade.Drawable{Shape: gshade.ShapePlane}, ray: towardZ, miss: true},
		{name: "triangle", d: gshade.Drawable{Shape: gshade.ShapeTriangle}, ray: towardZ, wantT: 5},
		{name: "circle", d: gshade.Drawable{Shape: gshade.ShapeCircle}, ray: towardZ, wantT: 5},
		{name: "rotated circle", d: gshade.Drawable{Shape: gshade.ShapeCircle, Transform: gshade.Transform{Rotation: ms3.Vec{Y: math.Pi / 2}}}, ray: Ray{Origin: ms3.Vec{X: 0.3, Z: -5}, Dir: ms3.Vec{Z: 1}}, miss: true},
		{name: "behind", d: gshade.Drawable{Shape: gshade.ShapeCube, Transform: gshade.Transform{Position: ms3.Vec{Z: -10}}}, ray: towardZ, miss: true},
		{name: "inside", d: gshade.Drawable{Shape: gshade.ShapeSphere, Transform: gshade.Transform{Scale: ms3.Vec{X: 20, Y: 20, Z: 20}}}, ray: towardZ, wantT: 15},
		{
			name:  "model bounds",
			d:     gshade.Drawable{Kind: gshade.DrawModel, Bounds: ms3.Box{Min: ms3.Vec{X: -1, Y: -1, Z: 1}, Max: ms3.Vec{X: 1, Y: 1, Z: 2}}},
			ray:   towardZ,
			wantT: 6,
		},
		{name: "empty bounds", d: gshade.Drawable{Kind: gshade.DrawVertexBuffer}, ray: towardZ, miss: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, ok := IntersectDrawable(&test.d, test.ray)
			if test.miss {
				if ok {
					t.Errorf("expected miss, hit at t=%g", got)
				}
				return
			}
			if !ok {
				t.Fatal("expected hit")
			}
			if math.Abs(got-test.wantT) > tol {
				t.Errorf("t=%g, want %g", got, test.wantT)
			}
		})
	}
}

func TestPickRayNearest(t *testing.T) {
	env := newTestEnv(t)
	far := &gshade.Drawable{Shape: gshade.ShapeCube, Transform: gshade.Transform{Position: ms3.Vec{Z: 3}}}
	near := &gshade.Drawable{Shape: gshade.ShapeSphere}
	hidden := &gshade.Drawable{Shape: gshade.ShapeCube, Hidden: true, Transform: gshade.Transform{Position: ms3.Vec{Z: -2}}}
	a := env.addPass("A", psSource, far)
	b := env.addPass("B", psSource, hidden, near)
	ray := Ray{Origin: ms3.Vec{Z: -5}, Dir: ms3.Vec{Z: 1}}
	hit, ok := env.r.PickRay(ray, nil)
	if !ok || hit.Pass != b || hit.Drawable != 1 {
		t.Fatalf("expected B[1], got %+v %v", hit, ok)
	}
	hit, ok = env.r.PickRay(ray, []PickResult{{Pass: a, Drawable: 0}})
	if !ok || hit.Pass != a {
		t.Errorf("candidates not honored: %+v", hit)
	}
	_, ok = env.r.PickRay(Ray{Origin: ms3.Vec{X: 10}, Dir: ms3.Vec{Z: 1}}, nil)
	if ok {
		t.Error("expected miss")
	}
}

func TestScreenRay(t *testing.T) {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, -5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(60), 1, 0.1, 100)
	ray, err := ScreenRay(50, 50, 100, 100, view, proj)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ray.Dir.Z-1) > 1e-3 || math.Abs(ray.Dir.X) > 1e-3 || math.Abs(ray.Dir.Y) > 1e-3 {
		t.Errorf("center ray should look down +Z, got %+v", ray.Dir)
	}
	d := gshade.Drawable{Shape: gshade.ShapeCube}
	if _, ok := IntersectDrawable(&d, ray); !ok {
		t.Error("center ray missed cube at origin")
	}
}
