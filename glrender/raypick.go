package glrender

import (
	math "github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/gshade"
)

// Ray is a half line starting at Origin. Dir need not be normalized; hit
// distances are measured in multiples of Dir.
type Ray struct {
	Origin ms3.Vec
	Dir    ms3.Vec
}

// At returns the point at parameter t along the ray.
func (ray Ray) At(t float32) ms3.Vec { return ms3.Add(ray.Origin, ms3.Scale(t, ray.Dir)) }

// RayHit is the result of geometric picking.
type RayHit struct {
	PickResult
	// T is the ray parameter of the hit point.
	T float32
}

// ScreenRay returns the world space ray through window pixel (x,y), origin
// top left, for a camera with the given view and projection matrices.
func ScreenRay(x, y float32, width, height int, view, projection mgl32.Mat4) (Ray, error) {
	wy := float32(height) - y
	near, err := mgl32.UnProject(mgl32.Vec3{x, wy, 0}, view, projection, 0, 0, width, height)
	if err != nil {
		return Ray{}, err
	}
	far, err := mgl32.UnProject(mgl32.Vec3{x, wy, 1}, view, projection, 0, 0, width, height)
	if err != nil {
		return Ray{}, err
	}
	origin := ms3.Vec{X: near[0], Y: near[1], Z: near[2]}
	end := ms3.Vec{X: far[0], Y: far[1], Z: far[2]}
	return Ray{Origin: origin, Dir: ms3.Unit(ms3.Sub(end, origin))}, nil
}

// PickRay intersects ray with the visible drawables of every shader pass and
// returns the nearest hit. When candidates is not empty only those drawables
// are tested, which resolves overlapping hits from a GPU pick.
func (r *Renderer) PickRay(ray Ray, candidates []PickResult) (RayHit, bool) {
	best := RayHit{T: math.Inf(1)}
	found := false
	test := func(pass gshade.ItemHandle, sp *gshade.ShaderPass, i int) {
		d := sp.Drawables[i]
		if d == nil || d.Hidden {
			return
		}
		t, ok := IntersectDrawable(d, ray)
		if ok && t < best.T {
			best = RayHit{PickResult: PickResult{Pass: pass, Drawable: i}, T: t}
			found = true
		}
	}
	if len(candidates) > 0 {
		for _, c := range candidates {
			item, ok := r.pl.Get(c.Pass)
			sp, isPass := item.(*gshade.ShaderPass)
			if ok && isPass && c.Drawable >= 0 && c.Drawable < len(sp.Drawables) {
				test(c.Pass, sp, c.Drawable)
			}
		}
		return best, found
	}
	for _, h := range r.pl.Items(nil) {
		item, _ := r.pl.Get(h)
		sp, ok := item.(*gshade.ShaderPass)
		if !ok {
			continue
		}
		for i := range sp.Drawables {
			test(h, sp, i)
		}
	}
	return best, found
}

// ModelMatrix returns the local to world matrix of tr: scale, then rotation
// about X, Y and Z, then translation. A zero scale component is treated as 1.
func ModelMatrix(tr gshade.Transform) mgl32.Mat4 {
	s := tr.Scale
	if s.X == 0 {
		s.X = 1
	}
	if s.Y == 0 {
		s.Y = 1
	}
	if s.Z == 0 {
		s.Z = 1
	}
	m := mgl32.Translate3D(tr.Position.X, tr.Position.Y, tr.Position.Z)
	m = m.Mul4(mgl32.HomogRotate3DZ(tr.Rotation.Z))
	m = m.Mul4(mgl32.HomogRotate3DY(tr.Rotation.Y))
	m = m.Mul4(mgl32.HomogRotate3DX(tr.Rotation.X))
	return m.Mul4(mgl32.Scale3D(s.X, s.Y, s.Z))
}

// IntersectDrawable intersects a world space ray with d. Analytic shapes are
// unit sized and centered at the local origin: the cube spans [-0.5,0.5] on
// every axis, the sphere and circle have radius 0.5, the plane lies on XZ and
// the triangle and circle lie on XY. Other drawables are tested against Bounds.
func IntersectDrawable(d *gshade.Drawable, ray Ray) (t float32, ok bool) {
	inv := ModelMatrix(d.Transform).Inv()
	o := inv.Mul4x1(mgl32.Vec4{ray.Origin.X, ray.Origin.Y, ray.Origin.Z, 1})
	dir := inv.Mul4x1(mgl32.Vec4{ray.Dir.X, ray.Dir.Y, ray.Dir.Z, 0})
	// Dir is not renormalized so t is shared between local and world space.
	local := Ray{
		Origin: ms3.Vec{X: o[0], Y: o[1], Z: o[2]},
		Dir:    ms3.Vec{X: dir[0], Y: dir[1], Z: dir[2]},
	}
	if d.Kind != gshade.DrawGeometry {
		if d.Bounds.Max == d.Bounds.Min {
			return 0, false
		}
		return intersectBox(local, d.Bounds)
	}
	switch d.Shape {
	case gshade.ShapeCube:
		return intersectBox(local, unitBox)
	case gshade.ShapeSphere:
		return intersectSphere(local, 0.5)
	case gshade.ShapePlane:
		return intersectPlane(local)
	case gshade.ShapeTriangle:
		return intersectTriangle(local, unitTriangle)
	case gshade.ShapeCircle:
		return intersectDisk(local, 0.5)
	}
	return 0, false
}

var (
	unitBox      = ms3.Box{Min: ms3.Vec{X: -0.5, Y: -0.5, Z: -0.5}, Max: ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5}}
	unitTriangle = ms3.Triangle{{X: -0.5, Y: -0.5}, {X: 0.5, Y: -0.5}, {Y: 0.5}}
)

// intersectBox uses the slab method.
func intersectBox(ray Ray, bb ms3.Box) (float32, bool) {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	o := [3]float32{ray.Origin.X, ray.Origin.Y, ray.Origin.Z}
	d := [3]float32{ray.Dir.X, ray.Dir.Y, ray.Dir.Z}
	lo := [3]float32{bb.Min.X, bb.Min.Y, bb.Min.Z}
	hi := [3]float32{bb.Max.X, bb.Max.Y, bb.Max.Z}
	for i := range 3 {
		if d[i] == 0 {
			if o[i] < lo[i] || o[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
	}
	return nearestNonNegative(tmin, tmax)
}

func intersectSphere(ray Ray, radius float32) (float32, bool) {
	a := ms3.Dot(ray.Dir, ray.Dir)
	if a == 0 {
		return 0, false
	}
	b := 2 * ms3.Dot(ray.Origin, ray.Dir)
	c := ms3.Dot(ray.Origin, ray.Origin) - radius*radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	return nearestNonNegative((-b-sq)/(2*a), (-b+sq)/(2*a))
}

// intersectPlane intersects the unit square on the XZ plane.
func intersectPlane(ray Ray) (float32, bool) {
	if ray.Dir.Y == 0 {
		return 0, false
	}
	t := -ray.Origin.Y / ray.Dir.Y
	p := ray.At(t)
	if t < 0 || math.Abs(p.X) > 0.5 || math.Abs(p.Z) > 0.5 {
		return 0, false
	}
	return t, true
}

// intersectDisk intersects a disk on the XY plane centered at the origin.
func intersectDisk(ray Ray, radius float32) (float32, bool) {
	if ray.Dir.Z == 0 {
		return 0, false
	}
	t := -ray.Origin.Z / ray.Dir.Z
	p := ray.At(t)
	if t < 0 || p.X*p.X+p.Y*p.Y > radius*radius {
		return 0, false
	}
	return t, true
}

// intersectTriangle is the Möller-Trumbore algorithm, hitting both faces.
func intersectTriangle(ray Ray, tri ms3.Triangle) (float32, bool) {
	const eps = 1e-7
	e1 := ms3.Sub(tri[1], tri[0])
	e2 := ms3.Sub(tri[2], tri[0])
	p := ms3.Cross(ray.Dir, e2)
	det := ms3.Dot(e1, p)
	if math.Abs(det) < eps {
		return 0, false
	}
	inv := 1 / det
	s := ms3.Sub(ray.Origin, tri[0])
	u := ms3.Dot(s, p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := ms3.Cross(s, e1)
	v := ms3.Dot(ray.Dir, q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := ms3.Dot(e2, q) * inv
	return t, t >= 0
}

// nearestNonNegative returns the entry distance of the interval [tmin,tmax],
// or tmax when the ray starts inside.
func nearestNonNegative(tmin, tmax float32) (float32, bool) {
	if tmax < tmin || tmax < 0 {
		return 0, false
	}
	if tmin >= 0 {
		return tmin, true
	}
	return tmax, true
}
