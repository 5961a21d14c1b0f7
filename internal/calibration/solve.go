// Package calibration derives the projection correction parameters from
// operator-confirmed samples. Two flows produce the same record: dragging
// individual entities into place (per-sample averaging) or aligning a ghost
// overlay of the captured photo (one holistic transform). The two fits are
// not numerically reconciled; whichever ran last wins.
package calibration

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"dr-shooter/internal/projection"
	"dr-shooter/internal/spatial"
)

// ErrNoSamples is returned when a solve is requested before any sample was
// confirmed.
var ErrNoSamples = errors.New("calibration: no samples recorded")

// Sample is one confirmed correction. Expected is where the projection with
// zero offsets and unit scale puts the sample's image coordinate at its
// resolved depth; Confirmed is where the operator left the entity. Immutable
// once recorded.
type Sample struct {
	U, V      float64 // normalized image coordinate, in [-0.5, 0.5]
	Expected  mgl64.Vec3
	Confirmed mgl64.Vec3
	Camera    spatial.Pose
	Distance  float64 // resolved placement depth; sets the view-plane size for offset normalization
}

// Solve averages per-sample corrections into one parameter set.
//
// Per sample: the confirmed-minus-expected delta is projected onto the
// camera's right/up axes and normalized by the view-plane size at that
// sample's distance; the scale is the confirmed position's camera distance
// over the expected position's. The arithmetic mean assumes the placement
// error is a constant bias rather than depth-dependent distortion.
func Solve(samples []Sample, fovDegrees, aspect float64) (projection.Params, error) {
	if len(samples) == 0 {
		return projection.Params{}, ErrNoSamples
	}

	var sumX, sumY, sumScale float64
	for _, s := range samples {
		viewW, viewH := projection.ViewPlane(fovDegrees, s.Distance, aspect)
		delta := s.Confirmed.Sub(s.Expected)

		sumX += delta.Dot(s.Camera.Right()) / viewW
		sumY += delta.Dot(s.Camera.Up()) / viewH

		origDist := s.Expected.Sub(s.Camera.Position).Len()
		confirmedDist := s.Confirmed.Sub(s.Camera.Position).Len()
		if origDist > 0 {
			sumScale += confirmedDist / origDist
		} else {
			sumScale += 1
		}
	}

	n := float64(len(samples))
	return projection.Params{
		OffsetX: sumX / n,
		OffsetY: sumY / n,
		Scale:   sumScale / n,
	}, nil
}
