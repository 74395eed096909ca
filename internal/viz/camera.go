package viz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Camera orbits a target point. Projection comes from the controller so the
// terminal sees the same frustum the device would.
type Camera struct {
	Target   mgl64.Vec3
	Yaw      float64
	Pitch    float64
	Distance float64
}

func NewCamera(target mgl64.Vec3, distance float64) *Camera {
	return &Camera{Target: target, Yaw: 0.6, Pitch: 0.35, Distance: distance}
}

func (c *Camera) Rotate(dyaw, dpitch float64) {
	c.Yaw += dyaw
	c.Pitch = math.Max(-1.4, math.Min(1.4, c.Pitch+dpitch))
}

func (c *Camera) Zoom(f float64) {
	c.Distance = math.Max(2, math.Min(500, c.Distance*f))
}

func (c *Camera) Eye() mgl64.Vec3 {
	cp := math.Cos(c.Pitch)
	offset := mgl64.Vec3{c.Distance * cp * math.Sin(c.Yaw), c.Distance * math.Sin(c.Pitch), c.Distance * cp * math.Cos(c.Yaw)}
	return c.Target.Add(offset)
}

func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Eye(), c.Target, mgl64.Vec3{0, 1, 0})
}

// Project maps p to dot coordinates on a w by h canvas. Points behind the
// camera or outside the frustum are rejected.
func Project(viewProj mgl64.Mat4, p mgl64.Vec3, w, h int) (int, int, bool) {
	clip := viewProj.Mul4x1(p.Vec4(1))
	if clip.W() <= 0 {
		return 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / clip.W())
	if math.Abs(ndc.X()) > 1 || math.Abs(ndc.Y()) > 1 || ndc.Z() < -1 || ndc.Z() > 1 {
		return 0, 0, false
	}
	x := int(math.Round((ndc.X() + 1) / 2 * float64(w-1)))
	y := int(math.Round((1 - ndc.Y()) / 2 * float64(h-1)))
	return x, y, true
}
