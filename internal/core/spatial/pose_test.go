package spatial

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func TestZeroPoseIsIdentity(t *testing.T) {
	var p Pose
	assert.True(t, p.ApproxEqual(Identity(), eps))
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, p.Apply(mgl64.Vec3{1, 2, 3}))
}

func TestMulAppliesRotationBeforeTranslation(t *testing.T) {
	parent := Translation(1, 0, 0).Mul(RotationAbout(AxisZ, 90))
	got := parent.Apply(mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, 0, got.Sub(mgl64.Vec3{1, 1, 0}).Len(), eps, "got %v", got)
}

func TestInverseCancels(t *testing.T) {
	p := Translation(0.2, -0.1, 0.5).Mul(RotationAbout(mgl64.Vec3{1, 1, 0}, 37))
	assert.True(t, p.Mul(p.Inverse()).ApproxEqual(Identity(), eps))
	assert.True(t, p.Inverse().Mul(p).ApproxEqual(Identity(), eps))
}

func TestRelativeIsInReceiverFrame(t *testing.T) {
	receiver := Translation(0, 0.1, 0).Mul(RotationAbout(AxisX, 90))
	transmitter := Translation(0, 0.1, 0.1)

	rel := Relative(receiver, transmitter)

	assert.InDelta(t, 0.1, rel.Distance(), eps)
	// The receiver's local +Y points along world +Z.
	assert.True(t, rel.ApproxEqual(Translation(0, 0.1, 0).Mul(RotationAbout(AxisX, -90)), eps), "got %s", rel)
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 0.05, Translation(0.03, 0.04, 0).Distance(), eps)
	assert.InDelta(t, math.Sqrt(3), Translation(1, 1, 1).Distance(), eps)
}

func TestApproxEqualTreatsNegatedQuaternionAsSame(t *testing.T) {
	p := RotationAbout(AxisY, 30)
	q := Pose{Rotation: p.Rotation.Scale(-1)}
	assert.True(t, p.ApproxEqual(q, eps))
	assert.False(t, p.ApproxEqual(Translation(0, 0, 1e-3), eps))
}

func TestApproxEqualIsAbsoluteNearZero(t *testing.T) {
	noisy := Pose{Position: mgl64.Vec3{0, 0.1, 1.3877787807814457e-17}, Rotation: mgl64.QuatIdent()}
	assert.True(t, noisy.ApproxEqual(Translation(0, 0.1, 0), eps))
	assert.True(t, Translation(1e-12, 0, 0).ApproxEqual(Identity(), eps))
	assert.False(t, Translation(2e-9, 0, 0).ApproxEqual(Identity(), eps))
	assert.False(t, RotationAbout(AxisZ, 0.01).ApproxEqual(Identity(), eps))
}
