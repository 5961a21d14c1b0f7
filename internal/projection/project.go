// Package projection converts points in a captured photo into world-space
// positions and sizes. The geometry half (field of view, depth, aspect) is
// deliberately separate from the calibration half (offset/scale), so the
// calibration engines can solve for the correction no matter which strategy
// supplied the depth value.
package projection

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"dr-shooter/internal/spatial"
)

// Params is the projection correction solved by the calibration engines.
// OffsetX/OffsetY are fractional world-space displacements applied scaled by
// depth; Scale multiplies both the projected offset from image center and
// the final entity scale.
type Params struct {
	OffsetX float64 `yaml:"offsetX"`
	OffsetY float64 `yaml:"offsetY"`
	Scale   float64 `yaml:"scaleFactor"`
}

// Identity is the uncorrected parameter set.
func Identity() Params {
	return Params{Scale: 1}
}

// Normalize maps a pixel coordinate to a signed fractional offset from the
// image center, u and v in [-0.5, 0.5]. v is flipped: image rows grow
// downward, world up is positive.
func Normalize(px, py float64, imgW, imgH int) (u, v float64) {
	u = px/float64(imgW) - 0.5
	v = -(py/float64(imgH) - 0.5)
	return u, v
}

// ViewPlane returns the full width and height in meters of the view plane at
// the given depth for the given vertical field of view.
func ViewPlane(fovDegrees, depth, aspect float64) (w, h float64) {
	h = 2 * depth * math.Tan(mgl64.DegToRad(fovDegrees)/2)
	return h * aspect, h
}

// Project places a normalized image coordinate at the given depth in front
// of the capturing camera.
//
// The base position is camera + forward·depth + right·(u·viewW·scale) +
// up·(v·viewH·scale); the calibration offset is then added as an extra
// displacement scaled by depth alone, so its effect is consistent across
// depths.
func Project(u, v, fovDegrees, depth, aspect float64, cal Params, cam spatial.Pose) mgl64.Vec3 {
	viewW, viewH := ViewPlane(fovDegrees, depth, aspect)

	pos := cam.Position.
		Add(cam.Forward().Mul(depth)).
		Add(cam.Right().Mul(u * viewW * cal.Scale)).
		Add(cam.Up().Mul(v * viewH * cal.Scale))

	return pos.
		Add(cam.Right().Mul(cal.OffsetX * depth)).
		Add(cam.Up().Mul(cal.OffsetY * depth))
}

// ProjectPixel is Project for raw pixel coordinates.
func ProjectPixel(px, py float64, imgW, imgH int, fovDegrees, depth float64, cal Params, cam spatial.Pose) mgl64.Vec3 {
	u, v := Normalize(px, py, imgW, imgH)
	return Project(u, v, fovDegrees, depth, float64(imgW)/float64(imgH), cal, cam)
}

// WorldSize converts a bounding-box footprint (fraction of the image) into
// meters on the view plane at the given depth. Calibration scale is not
// baked in here; it is applied as the entity's final scale so size and
// position stay decoupled from the correction.
func WorldSize(fracW, fracH, fovDegrees, depth, aspect float64) (w, h float64) {
	viewW, viewH := ViewPlane(fovDegrees, depth, aspect)
	return fracW * viewW, fracH * viewH
}
