package calibration

import (
	"time"

	"dr-shooter/internal/placement"
	"dr-shooter/internal/projection"
)

const (
	// DefaultSampleCount is how many entities the drag flow confirms.
	DefaultSampleCount = 5
	// stick values inside the deadzone are ignored to filter drift.
	stickDeadzone = 0.1
	// meters per second of entity travel at full stick deflection.
	dragSpeed = 0.4
)

// DragInput is one frame of controller state for the drag flow: the primary
// stick pair moves the entity along the camera's right/up axes, the
// secondary axis along forward.
type DragInput struct {
	X       float64 // right (+) / left (-)
	Y       float64 // up (+) / down (-)
	Forward float64 // away from (+) / toward (-) the camera
}

// DragCalibrator walks an operator through up to K placed entities. For each
// one the operator nudges the entity onto the real object and confirms; the
// confirmed pose becomes a Sample. Non-selected entities should be
// de-emphasized by the renderer; Selected exposes the chosen set for that.
type DragCalibrator struct {
	frame    placement.CapturedFrame
	fov      float64
	selected []*placement.Entity
	expected []Sample // pre-filled, Confirmed set on confirm
	index    int
	samples  []Sample
}

// NewDragCalibrator selects up to maxSamples entities (in placement order)
// and records the uncorrected projection of each entity's bbox center as the
// expected position. The entity's live position is not used for this: it
// already has the standing correction baked in, and expecting it would make
// the solve blind to that correction. A zero maxSamples means
// DefaultSampleCount.
func NewDragCalibrator(frame placement.CapturedFrame, fovDegrees float64, entities []*placement.Entity, maxSamples int) *DragCalibrator {
	if maxSamples <= 0 {
		maxSamples = DefaultSampleCount
	}
	if len(entities) > maxSamples {
		entities = entities[:maxSamples]
	}

	c := &DragCalibrator{
		frame:    frame,
		fov:      fovDegrees,
		selected: entities,
	}
	for _, e := range entities {
		cx, cy := float64(frame.Width)/2, float64(frame.Height)/2
		if len(e.MaskBBox) == 4 {
			cx = (e.MaskBBox[0] + e.MaskBBox[2]) / 2
			cy = (e.MaskBBox[1] + e.MaskBBox[3]) / 2
		}
		u, v := projection.Normalize(cx, cy, frame.Width, frame.Height)

		depth := e.Depth
		if depth <= 0 {
			// Older placements without a recorded depth: recover it by
			// projecting the position onto the camera forward axis. The
			// calibration displacements are purely lateral, so this gives
			// the original placement depth back exactly.
			depth = e.Position.Sub(frame.Camera.Position).Dot(frame.Camera.Forward())
		}

		expected := projection.ProjectPixel(cx, cy, frame.Width, frame.Height,
			fovDegrees, depth, projection.Identity(), frame.Camera)
		c.expected = append(c.expected, Sample{
			U:        u,
			V:        v,
			Expected: expected,
			Camera:   frame.Camera,
			Distance: depth,
		})
	}
	return c
}

// Selected returns the entities participating in this run.
func (c *DragCalibrator) Selected() []*placement.Entity { return c.selected }

// Current returns the entity awaiting confirmation, or nil when the run is
// finished or had no eligible entities.
func (c *DragCalibrator) Current() *placement.Entity {
	if c.index >= len(c.selected) {
		return nil
	}
	return c.selected[c.index]
}

// Done reports whether every selected entity has been confirmed.
func (c *DragCalibrator) Done() bool { return c.index >= len(c.selected) }

// Translate moves the current entity by the deadzone-filtered stick input,
// scaled by elapsed frame time. A no-op once the run is done.
func (c *DragCalibrator) Translate(in DragInput, dt time.Duration) {
	e := c.Current()
	if e == nil {
		return
	}
	step := dragSpeed * dt.Seconds()
	cam := c.frame.Camera
	e.Position = e.Position.
		Add(cam.Right().Mul(deadzone(in.X) * step)).
		Add(cam.Up().Mul(deadzone(in.Y) * step)).
		Add(cam.Forward().Mul(deadzone(in.Forward) * step))
}

// Confirm records the current entity's position as a sample and advances to
// the next entity. Confirming past the last entity is a guarded no-op; the
// index only moves forward, so a double-pulled trigger cannot record twice.
func (c *DragCalibrator) Confirm() bool {
	if c.Done() {
		return false
	}
	s := c.expected[c.index]
	s.Confirmed = c.selected[c.index].Position
	c.samples = append(c.samples, s)
	c.index++
	return true
}

// Samples returns the confirmed samples recorded so far.
func (c *DragCalibrator) Samples() []Sample { return c.samples }

// Solve fits the parameters from the confirmed samples.
func (c *DragCalibrator) Solve() (projection.Params, error) {
	aspect := float64(c.frame.Width) / float64(c.frame.Height)
	return Solve(c.samples, c.fov, aspect)
}

func deadzone(v float64) float64 {
	if v > -stickDeadzone && v < stickDeadzone {
		return 0
	}
	return v
}
