// Package session owns the round lifecycle: the game phase state machine,
// the capture→segment→place sequence, per-frame anchor upkeep, and the
// destroy/score bookkeeping. All methods are called from a single
// frame-driven goroutine; the only suspension points are the network call
// and camera acquisition inside RunRound.
package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dr-shooter/internal/anchor"
	"dr-shooter/internal/calibration"
	"dr-shooter/internal/mesh"
	"dr-shooter/internal/placement"
	"dr-shooter/internal/projection"
	"dr-shooter/internal/segment"
)

// Phase is the game's coarse state. Transitions:
// idle → capture → loading → playing → completed → capture (restart) and
// any → idle on session end.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCapture   Phase = "capture"
	PhaseLoading   Phase = "loading"
	PhasePlaying   Phase = "playing"
	PhaseCompleted Phase = "completed"
)

// Camera acquires one passthrough photo with its capture pose.
type Camera interface {
	Capture(ctx context.Context) (placement.CapturedFrame, error)
}

// Segmenter is the remote segmentation collaborator. *segment.Client
// satisfies it.
type Segmenter interface {
	Segment(ctx context.Context, req segment.Request) (*segment.Response, error)
}

// MeshSource exposes the room-mesh collaborator's per-frame snapshot. An
// empty snapshot means detection has not produced geometry yet.
type MeshSource interface {
	Snapshot() mesh.Snapshot
}

// Capabilities are the optional platform features, resolved once at session
// start. Nil fields mean the capability is absent; every consumer treats
// that as a first-class path.
type Capabilities struct {
	Anchors  anchor.Platform
	RoomMesh MeshSource
}

// Config bundles the per-deployment constants.
type Config struct {
	Request         segment.Request // template; Image is filled per round
	Placement       placement.Config
	RestartCooldown time.Duration // default 3s

	// Bounded wait for room geometry before calibration proceeds without it.
	MeshWaitInterval time.Duration // default 100ms
	MeshWaitCeiling  time.Duration // default 3s
}

func (c *Config) applyDefaults() {
	if c.RestartCooldown <= 0 {
		c.RestartCooldown = 3 * time.Second
	}
	if c.MeshWaitInterval <= 0 {
		c.MeshWaitInterval = 100 * time.Millisecond
	}
	if c.MeshWaitCeiling <= 0 {
		c.MeshWaitCeiling = 3 * time.Second
	}
}

// Session is the explicit game state passed to every component that reads
// or mutates phase, score or entities. One per process, owned by the
// top-level orchestrator.
type Session struct {
	cfg       Config
	log       *logrus.Logger
	camera    Camera
	segmenter Segmenter
	caps      Capabilities

	tracker  *anchor.Tracker
	calStore *calibration.Store
	entities *placement.Set

	phase     Phase
	destroyed int
	total     int

	// captureLatch blocks a second trigger while the capture waits for the
	// next frame; initializing blocks re-entrant round starts while the
	// network round trip is in flight.
	captureLatch bool
	initializing bool
	ready        bool
	calibrating  bool

	frame           *placement.CapturedFrame
	combinedInpaint string
	completedAt     time.Time
}

func New(cfg Config, cam Camera, seg Segmenter, caps Capabilities, calStore *calibration.Store, log *logrus.Logger) *Session {
	cfg.applyDefaults()
	return &Session{
		cfg:       cfg,
		log:       log,
		camera:    cam,
		segmenter: seg,
		caps:      caps,
		tracker:   anchor.NewTracker(caps.Anchors, log),
		calStore:  calStore,
		entities:  placement.NewSet(),
		phase:     PhaseIdle,
		ready:     true,
	}
}

func (s *Session) Phase() Phase             { return s.phase }
func (s *Session) Ready() bool              { return s.ready }
func (s *Session) Entities() *placement.Set { return s.entities }
func (s *Session) Calibrating() bool        { return s.calibrating }

// Counts returns destroyed and total mask counts for the round.
func (s *Session) Counts() (destroyed, total int) { return s.destroyed, s.total }

// CombinedInpaint returns the round-level inpaint texture reference, if the
// service produced one.
func (s *Session) CombinedInpaint() string { return s.combinedInpaint }

// Frame returns the round's captured frame, or nil before capture.
func (s *Session) Frame() *placement.CapturedFrame { return s.frame }

// Start moves an idle session into the capture phase. Loads persisted
// calibration parameters into the placement config.
func (s *Session) Start() {
	if s.phase != PhaseIdle {
		return
	}
	if s.calStore != nil {
		p, err := s.calStore.Load()
		if err != nil {
			s.log.WithError(err).Warn("session: calibration load failed, using fallback")
		}
		s.cfg.Placement.Calibration = p
	}
	s.phase = PhaseCapture
	s.log.WithFields(logrus.Fields{
		"anchors":   s.tracker.Supported(),
		"room_mesh": s.caps.RoomMesh != nil,
	}).Info("session: started")
}

// End tears the session down: anchors are released before the entities are
// discarded, then everything returns to idle.
func (s *Session) End() {
	s.tracker.Dispose(s.entities.All())
	s.entities.Clear()
	s.frame = nil
	s.combinedInpaint = ""
	s.destroyed, s.total = 0, 0
	s.captureLatch = false
	s.initializing = false
	s.ready = true
	s.phase = PhaseIdle
}

// TriggerCapture latches a capture request. Only one trigger is honored per
// capture phase; the latch is released when the round fails fatally.
func (s *Session) TriggerCapture() bool {
	if s.phase != PhaseCapture || s.captureLatch {
		return false
	}
	s.captureLatch = true
	return true
}

// RunRound executes the latched capture → segmentation → placement sequence.
// Re-entrant calls while a round is in flight are no-ops. Every exit leaves
// the session ready; failures degrade to an empty playing state (service
// errors, zero masks) or back to capture (camera acquisition failure).
func (s *Session) RunRound(ctx context.Context) {
	if s.phase != PhaseCapture || !s.captureLatch || s.initializing {
		return
	}
	s.initializing = true
	s.ready = false
	defer func() {
		s.initializing = false
		s.ready = true
	}()

	frame, err := s.camera.Capture(ctx)
	if err != nil {
		// Fatal for the round: no image means nothing to segment. Release
		// the latch so the operator can retry.
		s.log.WithError(err).Error("session: capture failed, returning to capture phase")
		s.captureLatch = false
		s.phase = PhaseCapture
		return
	}
	s.frame = &frame
	s.phase = PhaseLoading

	req := s.cfg.Request
	req.Image = frame.ImageBase64

	resp, err := s.segmenter.Segment(ctx, req)
	if err != nil {
		// Transient: proceed to an empty playing state instead of stalling.
		s.log.WithError(err).Warn("session: segmentation failed, starting empty round")
		s.beginPlaying(nil, "")
		return
	}
	if resp.Count == 0 {
		s.log.Info("session: service returned zero masks")
		s.beginPlaying(nil, "")
		return
	}
	s.beginPlaying(resp.Masks, resp.CombinedInpaintData)
}

func (s *Session) beginPlaying(masks []segment.Mask, combinedInpaint string) {
	var resolver placement.Resolver
	if s.caps.RoomMesh != nil {
		resolver = s.caps.RoomMesh.Snapshot()
	}
	orch := placement.NewOrchestrator(s.cfg.Placement, resolver, s.log)

	placed := orch.PlaceAll(*s.frame, masks, s.entities)
	s.total = len(placed)
	s.destroyed = 0
	s.combinedInpaint = combinedInpaint
	s.phase = PhasePlaying
	s.log.WithField("entities", s.total).Info("session: round placed")
}

// Tick is the per-frame entry point. hasFrame reports whether a valid frame
// callback context exists this tick; anchor creation and pose queries are
// only legal inside one. Anchor upkeep is additionally gated on playing
// phase and no active calibration flow.
func (s *Session) Tick(hasFrame bool) {
	if !hasFrame || s.phase != PhasePlaying || s.calibrating {
		return
	}
	all := s.entities.All()
	s.tracker.CreateAnchors(all)
	s.tracker.UpdatePoses(all)
}

// RegisterHit hides the entity for the given mask id and advances the
// score. The transition to completed fires exactly once, when every mask is
// destroyed.
func (s *Session) RegisterHit(maskID int, now time.Time) {
	if s.phase != PhasePlaying {
		return
	}
	e, ok := s.entities.Get(maskID)
	if !ok || !e.Visible {
		return
	}
	e.Visible = false
	s.destroyed++
	if s.total > 0 && s.destroyed == s.total {
		s.phase = PhaseCompleted
		s.completedAt = now
		s.log.WithField("destroyed", s.destroyed).Info("session: round completed")
	}
}

// Restart returns a completed session to the capture phase once the
// cooldown has elapsed, guarding against input bounce. Early calls leave
// the phase untouched.
func (s *Session) Restart(now time.Time) bool {
	if s.phase != PhaseCompleted {
		return false
	}
	if now.Sub(s.completedAt) < s.cfg.RestartCooldown {
		return false
	}
	s.tracker.Dispose(s.entities.All())
	s.entities.Clear()
	s.frame = nil
	s.combinedInpaint = ""
	s.destroyed, s.total = 0, 0
	s.captureLatch = false
	s.phase = PhaseCapture
	return true
}

// BeginCalibration gates anchor upkeep off while a calibration flow runs.
// It waits (bounded) for room geometry so depth-aware calibration has
// something to raycast against, then reports whether a mesh arrived.
func (s *Session) BeginCalibration(ctx context.Context) bool {
	s.calibrating = true
	return s.waitForMesh(ctx)
}

// FinishCalibration persists the solved parameters and applies them to
// subsequent placements.
func (s *Session) FinishCalibration(p projection.Params) {
	s.calibrating = false
	s.cfg.Placement.Calibration = p
	if s.calStore == nil {
		return
	}
	if err := s.calStore.Save(p); err != nil {
		s.log.WithError(err).Warn("session: calibration save failed")
	}
}

// CalibrationParams returns the parameters currently applied to placement.
func (s *Session) CalibrationParams() projection.Params {
	return s.cfg.Placement.Calibration
}

// waitForMesh polls the room-mesh snapshot until geometry shows up or the
// ceiling passes. A soft timeout: calibration proceeds without mesh data.
func (s *Session) waitForMesh(ctx context.Context) bool {
	if s.caps.RoomMesh == nil {
		return false
	}
	deadline := time.Now().Add(s.cfg.MeshWaitCeiling)
	for {
		if len(s.caps.RoomMesh.Snapshot().Meshes) > 0 {
			return true
		}
		if time.Now().After(deadline) {
			s.log.Warn("session: room mesh never arrived, proceeding without it")
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.MeshWaitInterval):
		}
	}
}
