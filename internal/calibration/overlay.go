package calibration

import (
	"time"

	"dr-shooter/internal/projection"
	"dr-shooter/internal/spatial"
)

const (
	overlaySpeed      = 0.3 // meters per second of overlay travel
	overlayScaleSpeed = 0.5 // scale units per second
	overlayMinScale   = 0.2
	overlayMaxScale   = 5.0
)

// OverlayCalibrator aligns a semi-transparent plane showing the captured
// photo, held at a fixed depth in front of the capture pose, against the
// passthrough view. One stick translates the whole overlay, a second axis
// scales it uniformly; a single confirm yields the parameters directly,
// since whole-image alignment already encodes offset and scale.
type OverlayCalibrator struct {
	camera spatial.Pose
	depth  float64

	rightOffset float64 // meters along the camera's right axis
	upOffset    float64 // meters along the camera's up axis
	scale       float64
	confirmed   bool
}

// NewOverlayCalibrator starts an overlay run at the given depth (the same
// fixed default depth entities fall back to).
func NewOverlayCalibrator(camera spatial.Pose, depth float64) *OverlayCalibrator {
	return &OverlayCalibrator{camera: camera, depth: depth, scale: 1}
}

// Translate shifts the overlay by the deadzone-filtered stick input scaled
// by frame time.
func (c *OverlayCalibrator) Translate(x, y float64, dt time.Duration) {
	if c.confirmed {
		return
	}
	step := overlaySpeed * dt.Seconds()
	c.rightOffset += deadzone(x) * step
	c.upOffset += deadzone(y) * step
}

// Rescale grows or shrinks the overlay uniformly, clamped to a sane range.
func (c *OverlayCalibrator) Rescale(axis float64, dt time.Duration) {
	if c.confirmed {
		return
	}
	c.scale += deadzone(axis) * overlayScaleSpeed * dt.Seconds()
	if c.scale < overlayMinScale {
		c.scale = overlayMinScale
	}
	if c.scale > overlayMaxScale {
		c.scale = overlayMaxScale
	}
}

// PlaneCenter returns the overlay plane's current world position, for the
// renderer to draw the ghost image at.
func (c *OverlayCalibrator) PlaneCenter() spatial.Pose {
	pos := c.camera.Position.
		Add(c.camera.Forward().Mul(c.depth)).
		Add(c.camera.Right().Mul(c.rightOffset)).
		Add(c.camera.Up().Mul(c.upOffset))
	return spatial.Pose{Position: pos, Orientation: c.camera.Orientation}
}

// Scale returns the overlay's current uniform scale.
func (c *OverlayCalibrator) Scale() float64 { return c.scale }

// Confirmed reports whether the run has finished.
func (c *OverlayCalibrator) Confirmed() bool { return c.confirmed }

// Confirm freezes the alignment and converts it into parameters. The offset
// is divided by the plane depth so applying it back (offset·depth) recreates
// the displacement exactly. Repeat confirms return the same parameters.
func (c *OverlayCalibrator) Confirm() projection.Params {
	c.confirmed = true
	return projection.Params{
		OffsetX: c.rightOffset / c.depth,
		OffsetY: c.upOffset / c.depth,
		Scale:   c.scale,
	}
}
