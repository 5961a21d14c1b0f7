package placement

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"dr-shooter/internal/mesh"
	"dr-shooter/internal/projection"
	"dr-shooter/internal/segment"
	"dr-shooter/internal/spatial"
)

// Resolver answers ray queries against the live room mesh. mesh.Snapshot
// satisfies it.
type Resolver interface {
	Resolve(ray spatial.Ray) (mesh.Hit, bool)
}

// Config holds the placement constants for one round.
type Config struct {
	FOVDegrees     float64
	FixedDepth     float64 // fallback distance in meters
	MinHitDistance float64 // hits closer than this are treated as misses
	DepthMode      DepthMode
	Calibration    projection.Params

	// CornerInset is the margin, as a fraction of the bbox extent, at which
	// multi-point corner rays are sampled.
	CornerInset float64
}

// Orchestrator consumes one segmentation result per round and produces
// placed entities.
type Orchestrator struct {
	cfg      Config
	resolver Resolver
	log      *logrus.Logger
}

func NewOrchestrator(cfg Config, resolver Resolver, log *logrus.Logger) *Orchestrator {
	if cfg.CornerInset <= 0 {
		cfg.CornerInset = 0.2
	}
	return &Orchestrator{cfg: cfg, resolver: resolver, log: log}
}

// DepthSample is one resolved depth with its quality signal.
type DepthSample struct {
	Distance float64
	Normal   mgl64.Vec3
	Hits     int
	Degraded bool // distance is the fixed fallback, not a measured hit
}

// PlaceAll creates one entity per mask, in the order provided. Masks whose
// id is already present in the set are skipped. A nil or empty mask list
// yields no entities and no error.
func (o *Orchestrator) PlaceAll(frame CapturedFrame, masks []segment.Mask, into *Set) []*Entity {
	placed := make([]*Entity, 0, len(masks))
	for _, m := range masks {
		e := o.place(frame, m)
		if !into.Add(e) {
			o.log.WithField("mask_id", m.ID).Warn("placement: duplicate mask id, skipped")
			continue
		}
		placed = append(placed, e)
	}
	return placed
}

func (o *Orchestrator) place(frame CapturedFrame, m segment.Mask) *Entity {
	cx, cy, fracW, fracH := maskFootprint(frame, m)

	sample := o.resolveDepth(frame, m)
	if sample.Degraded {
		o.log.WithFields(logrus.Fields{
			"mask_id": m.ID,
			"mode":    string(o.cfg.DepthMode),
			"hits":    sample.Hits,
		}).Warn("placement: depth fell back to fixed distance")
	}

	aspect := float64(frame.Width) / float64(frame.Height)
	pos := projection.ProjectPixel(cx, cy, frame.Width, frame.Height,
		o.cfg.FOVDegrees, sample.Distance, o.cfg.Calibration, frame.Camera)
	w, h := projection.WorldSize(fracW, fracH, o.cfg.FOVDegrees, sample.Distance, aspect)

	return &Entity{
		ID:       m.ID,
		Position: pos,
		// Billboard policy: always face the capturing camera. Surface-normal
		// alignment loses gameplay legibility on oblique walls.
		Orientation: frame.Camera.Orientation,
		Width:       w,
		Height:      h,
		Scale:       o.cfg.Calibration.Scale,
		Depth:       sample.Distance,
		Visible:     true,
		Degraded:    sample.Degraded,
		MaskData:    m.Data,
		MaskBBox:    m.BBox,
		Color:       m.Color,
		InpaintData: m.InpaintData,
		InpaintBBox: m.InpaintBBox,
	}
}

// maskFootprint returns the bbox center in pixels and the bbox extent as a
// fraction of the frame. A missing bbox means the mask covers the whole
// frame, so the footprint is the entire view plane.
func maskFootprint(frame CapturedFrame, m segment.Mask) (cx, cy, fracW, fracH float64) {
	if len(m.BBox) != 4 {
		return float64(frame.Width) / 2, float64(frame.Height) / 2, 1, 1
	}
	x1, y1, x2, y2 := m.BBox[0], m.BBox[1], m.BBox[2], m.BBox[3]
	return (x1 + x2) / 2, (y1 + y2) / 2,
		(x2 - x1) / float64(frame.Width),
		(y2 - y1) / float64(frame.Height)
}

func (o *Orchestrator) resolveDepth(frame CapturedFrame, m segment.Mask) DepthSample {
	switch o.cfg.DepthMode {
	case DepthCenter:
		return o.depthCenter(frame, m)
	case DepthMultiPoint:
		return o.depthMultiPoint(frame, m)
	default:
		return DepthSample{Distance: o.cfg.FixedDepth}
	}
}

func (o *Orchestrator) depthCenter(frame CapturedFrame, m segment.Mask) DepthSample {
	cx, cy, _, _ := maskFootprint(frame, m)
	hit, ok := o.castThrough(frame, cx, cy)
	if !ok || hit.Distance < o.cfg.MinHitDistance {
		return DepthSample{Distance: o.cfg.FixedDepth, Degraded: true}
	}
	return DepthSample{Distance: hit.Distance, Normal: hit.Normal, Hits: 1}
}

func (o *Orchestrator) depthMultiPoint(frame CapturedFrame, m segment.Mask) DepthSample {
	var sumDist float64
	var sumNormal mgl64.Vec3
	hits := 0

	for _, pt := range o.samplePoints(frame, m) {
		hit, ok := o.castThrough(frame, pt[0], pt[1])
		if !ok || hit.Distance < o.cfg.MinHitDistance {
			continue
		}
		sumDist += hit.Distance
		sumNormal = sumNormal.Add(hit.Normal)
		hits++
	}

	if hits == 0 {
		return DepthSample{Distance: o.cfg.FixedDepth, Degraded: true}
	}
	avg := sumDist / float64(hits)
	if avg < o.cfg.MinHitDistance {
		return DepthSample{Distance: o.cfg.FixedDepth, Hits: hits, Degraded: true}
	}
	n := sumNormal
	if l := n.Len(); l > 0 {
		n = n.Mul(1 / l)
	}
	return DepthSample{Distance: avg, Normal: n, Hits: hits}
}

// samplePoints returns the bbox center plus four corners inset by
// CornerInset of the bbox extent.
func (o *Orchestrator) samplePoints(frame CapturedFrame, m segment.Mask) [][2]float64 {
	var x1, y1, x2, y2 float64
	if len(m.BBox) == 4 {
		x1, y1, x2, y2 = m.BBox[0], m.BBox[1], m.BBox[2], m.BBox[3]
	} else {
		x2, y2 = float64(frame.Width), float64(frame.Height)
	}
	inX := (x2 - x1) * o.cfg.CornerInset
	inY := (y2 - y1) * o.cfg.CornerInset
	return [][2]float64{
		{(x1 + x2) / 2, (y1 + y2) / 2},
		{x1 + inX, y1 + inY},
		{x2 - inX, y1 + inY},
		{x1 + inX, y2 - inY},
		{x2 - inX, y2 - inY},
	}
}

// castThrough builds the world ray from the camera through an image point.
// Depth rays use the uncorrected projection: calibration adjusts where the
// entity lands, not where we probe the room.
func (o *Orchestrator) castThrough(frame CapturedFrame, px, py float64) (mesh.Hit, bool) {
	if o.resolver == nil {
		return mesh.Hit{}, false
	}
	target := projection.ProjectPixel(px, py, frame.Width, frame.Height,
		o.cfg.FOVDegrees, 1, projection.Identity(), frame.Camera)
	ray := spatial.NewRay(frame.Camera.Position, target.Sub(frame.Camera.Position))
	return o.resolver.Resolve(ray)
}
