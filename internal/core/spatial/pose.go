// Package spatial holds rigid transforms used by the scene graph and by
// interface sessions. Rotations are unit quaternions, translations are meters.
package spatial

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultEpsilon is the tolerance used when deciding whether a pose changed
// between two frames.
const DefaultEpsilon = 1e-9

var (
	AxisX = mgl64.Vec3{1, 0, 0}
	AxisY = mgl64.Vec3{0, 1, 0}
	AxisZ = mgl64.Vec3{0, 0, 1}
)

// Pose is a rigid transform: rotate by Rotation, then translate by Position.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// Identity returns the pose that maps every point onto itself.
func Identity() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// Translation returns a pure translation.
func Translation(x, y, z float64) Pose {
	return Pose{Position: mgl64.Vec3{x, y, z}, Rotation: mgl64.QuatIdent()}
}

// RotationAbout returns a pure rotation of deg degrees about axis.
func RotationAbout(axis mgl64.Vec3, deg float64) Pose {
	return Pose{Rotation: mgl64.QuatRotate(mgl64.DegToRad(deg), axis.Normalize())}
}

// Mul composes p with child, so that the result maps child-local points into
// p's parent frame.
func (p Pose) Mul(child Pose) Pose {
	rot := p.rotation()
	return Pose{
		Position: p.Position.Add(rot.Rotate(child.Position)),
		Rotation: rot.Mul(child.rotation()).Normalize(),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	inv := p.rotation().Inverse()
	return Pose{
		Position: inv.Rotate(p.Position).Mul(-1),
		Rotation: inv,
	}
}

// Apply transforms a point from p's local frame into its parent frame.
func (p Pose) Apply(point mgl64.Vec3) mgl64.Vec3 {
	return p.Position.Add(p.rotation().Rotate(point))
}

// Distance is the length of the translation component.
func (p Pose) Distance() float64 {
	return p.Position.Len()
}

// ApproxEqual reports whether translations are within eps of each other and
// rotations differ by at most eps per quaternion component. Both tolerances
// are absolute, so noise around zero compares equal. q and -q are the same
// rotation and compare equal.
func (p Pose) ApproxEqual(other Pose, eps float64) bool {
	if p.Position.Sub(other.Position).Len() > eps {
		return false
	}
	a, b := p.rotation(), other.rotation()
	return a.Sub(b).Len() <= eps || a.Add(b).Len() <= eps
}

func (p Pose) String() string {
	r := p.rotation()
	return fmt.Sprintf("pos(%.4f, %.4f, %.4f) rot(%.4f; %.4f, %.4f, %.4f)",
		p.Position[0], p.Position[1], p.Position[2], r.W, r.V[0], r.V[1], r.V[2])
}

// rotation treats the zero quaternion as identity so that Pose{} is usable.
func (p Pose) rotation() mgl64.Quat {
	if p.Rotation.W == 0 && p.Rotation.V == (mgl64.Vec3{}) {
		return mgl64.QuatIdent()
	}
	return p.Rotation
}

// Relative expresses the transmitter's world pose in the receiver's local frame.
func Relative(receiverWorld, transmitterWorld Pose) Pose {
	return receiverWorld.Inverse().Mul(transmitterWorld)
}
