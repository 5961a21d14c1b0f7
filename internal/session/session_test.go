package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"dr-shooter/internal/anchor"
	"dr-shooter/internal/mesh"
	"dr-shooter/internal/placement"
	"dr-shooter/internal/projection"
	"dr-shooter/internal/segment"
	"dr-shooter/internal/spatial"
)

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fakeCamera struct {
	err   error
	calls int
}

func (c *fakeCamera) Capture(ctx context.Context) (placement.CapturedFrame, error) {
	c.calls++
	if c.err != nil {
		return placement.CapturedFrame{}, c.err
	}
	return placement.CapturedFrame{
		ImageBase64: "aW1n",
		Width:       640,
		Height:      480,
		Camera:      spatial.Pose{Position: mgl64.Vec3{0, 1.6, 0}, Orientation: mgl64.QuatIdent()},
	}, nil
}

type fakeSegmenter struct {
	resp  *segment.Response
	err   error
	calls int
}

func (s *fakeSegmenter) Segment(ctx context.Context, req segment.Request) (*segment.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type fakeMeshSource struct {
	snap mesh.Snapshot
}

func (m *fakeMeshSource) Snapshot() mesh.Snapshot { return m.snap }

func twoMaskResponse() *segment.Response {
	return &segment.Response{
		Success:   true,
		Count:     2,
		ImageSize: [2]int{640, 480},
		Masks: []segment.Mask{
			{ID: 0, BBox: []float64{100, 100, 200, 200}},
			{ID: 1, BBox: []float64{300, 200, 400, 320}},
		},
		CombinedInpaintData: "aW5wYWludA==",
	}
}

func testConfig() Config {
	return Config{
		Request: segment.DefaultRequest(),
		Placement: placement.Config{
			FOVDegrees:     97,
			FixedDepth:     2.5,
			MinHitDistance: 0.5,
			DepthMode:      placement.DepthNone,
			Calibration:    projection.Identity(),
		},
		RestartCooldown:  3 * time.Second,
		MeshWaitInterval: time.Millisecond,
		MeshWaitCeiling:  5 * time.Millisecond,
	}
}

func newPlayingSession(t *testing.T) (*Session, *anchor.SimPlatform) {
	t.Helper()
	platform := anchor.NewSimPlatform()
	s := New(testConfig(), &fakeCamera{}, &fakeSegmenter{resp: twoMaskResponse()},
		Capabilities{Anchors: platform}, nil, quietLog())
	s.Start()
	if !s.TriggerCapture() {
		t.Fatal("trigger failed")
	}
	s.RunRound(context.Background())
	if s.Phase() != PhasePlaying {
		t.Fatalf("phase = %s, want playing", s.Phase())
	}
	return s, platform
}

func TestStartTransitionsIdleToCapture(t *testing.T) {
	s := New(testConfig(), &fakeCamera{}, &fakeSegmenter{}, Capabilities{}, nil, quietLog())
	if s.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %s", s.Phase())
	}
	s.Start()
	if s.Phase() != PhaseCapture {
		t.Fatalf("phase = %s, want capture", s.Phase())
	}
	// Start is idempotent outside idle.
	s.Start()
	if s.Phase() != PhaseCapture {
		t.Fatalf("phase = %s after second Start", s.Phase())
	}
}

func TestCaptureLatchBlocksDoubleTrigger(t *testing.T) {
	s := New(testConfig(), &fakeCamera{}, &fakeSegmenter{resp: twoMaskResponse()}, Capabilities{}, nil, quietLog())
	s.Start()
	if !s.TriggerCapture() {
		t.Fatal("first trigger must be accepted")
	}
	if s.TriggerCapture() {
		t.Fatal("second trigger in the same capture phase must be rejected")
	}
}

func TestRunRoundWithoutLatchIsNoop(t *testing.T) {
	cam := &fakeCamera{}
	s := New(testConfig(), cam, &fakeSegmenter{resp: twoMaskResponse()}, Capabilities{}, nil, quietLog())
	s.Start()
	s.RunRound(context.Background())
	if cam.calls != 0 {
		t.Fatal("round ran without a latched trigger")
	}
}

func TestRunRoundPlacesEntities(t *testing.T) {
	s, _ := newPlayingSession(t)
	if s.Entities().Len() != 2 {
		t.Fatalf("entities = %d, want 2", s.Entities().Len())
	}
	destroyed, total := s.Counts()
	if destroyed != 0 || total != 2 {
		t.Fatalf("counts = %d/%d", destroyed, total)
	}
	if !s.Ready() {
		t.Fatal("session must be ready after a round")
	}
	if s.CombinedInpaint() == "" {
		t.Fatal("combined inpaint reference dropped")
	}
}

func TestRunRoundNotReentrantAfterSuccess(t *testing.T) {
	s, _ := newPlayingSession(t)
	before := s.Entities().Len()
	s.RunRound(context.Background()) // latch is still set, phase is playing
	if s.Entities().Len() != before || s.Phase() != PhasePlaying {
		t.Fatal("round re-ran outside the capture phase")
	}
}

func TestRunRoundCaptureFailureReturnsToCapture(t *testing.T) {
	cam := &fakeCamera{err: errors.New("no camera")}
	s := New(testConfig(), cam, &fakeSegmenter{resp: twoMaskResponse()}, Capabilities{}, nil, quietLog())
	s.Start()
	s.TriggerCapture()
	s.RunRound(context.Background())

	if s.Phase() != PhaseCapture {
		t.Fatalf("phase = %s, want capture", s.Phase())
	}
	if !s.Ready() {
		t.Fatal("session must end ready even on failure")
	}
	// Latch released: the operator can retry.
	if !s.TriggerCapture() {
		t.Fatal("retrigger after fatal failure must be accepted")
	}
}

func TestRunRoundServiceErrorStartsEmptyRound(t *testing.T) {
	s := New(testConfig(), &fakeCamera{}, &fakeSegmenter{err: errors.New("connection refused")},
		Capabilities{}, nil, quietLog())
	s.Start()
	s.TriggerCapture()
	s.RunRound(context.Background())

	if s.Phase() != PhasePlaying {
		t.Fatalf("phase = %s, want empty playing state", s.Phase())
	}
	if s.Entities().Len() != 0 {
		t.Fatal("entities must be empty")
	}
	if !s.Ready() {
		t.Fatal("session must never stall un-ready")
	}
}

func TestRunRoundZeroMasks(t *testing.T) {
	seg := &fakeSegmenter{resp: &segment.Response{Success: true, Count: 0}}
	s := New(testConfig(), &fakeCamera{}, seg, Capabilities{}, nil, quietLog())
	s.Start()
	s.TriggerCapture()
	s.RunRound(context.Background())
	if s.Phase() != PhasePlaying || s.Entities().Len() != 0 {
		t.Fatalf("phase=%s entities=%d, want empty playing", s.Phase(), s.Entities().Len())
	}
}

func TestTickCreatesAnchorsOnlyWithFrameContext(t *testing.T) {
	s, platform := newPlayingSession(t)

	s.Tick(false)
	if platform.Live() != 0 {
		t.Fatal("anchors created outside a frame callback")
	}
	s.Tick(true)
	if platform.Live() != 2 {
		t.Fatalf("anchors = %d, want 2", platform.Live())
	}
	// Idempotent across ticks.
	s.Tick(true)
	if platform.Live() != 2 {
		t.Fatalf("anchors = %d after second tick, want 2", platform.Live())
	}
}

func TestTickGatedDuringCalibration(t *testing.T) {
	s, platform := newPlayingSession(t)
	s.BeginCalibration(context.Background())
	s.Tick(true)
	if platform.Live() != 0 {
		t.Fatal("anchor upkeep must pause while calibrating")
	}
	s.FinishCalibration(projection.Identity())
	s.Tick(true)
	if platform.Live() != 2 {
		t.Fatal("anchor upkeep must resume after calibration")
	}
}

func TestTickAppliesAnchorDrift(t *testing.T) {
	s, platform := newPlayingSession(t)
	s.Tick(true)

	e, _ := s.Entities().Get(0)
	before := e.Position
	platform.Shift(0.2, 0, 0)
	s.Tick(true)
	if e.Position == before {
		t.Fatal("pose update did not follow the anchor")
	}
	if d := e.Position.X() - before.X(); d < 0.2-1e-9 || d > 0.2+1e-9 {
		t.Fatalf("drift applied wrong: %v -> %v", before, e.Position)
	}
}

func TestRegisterHitCompletesExactlyOnce(t *testing.T) {
	s, _ := newPlayingSession(t)
	now := time.Now()

	s.RegisterHit(0, now)
	if s.Phase() != PhasePlaying {
		t.Fatalf("phase = %s after first hit", s.Phase())
	}
	e, _ := s.Entities().Get(0)
	if e.Visible {
		t.Fatal("hit entity must be hidden")
	}

	// Repeat hit on the same mask must not advance the count.
	s.RegisterHit(0, now)
	if d, _ := s.Counts(); d != 1 {
		t.Fatalf("destroyed = %d after repeat hit, want 1", d)
	}

	s.RegisterHit(1, now)
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %s, want completed", s.Phase())
	}
	d, total := s.Counts()
	if d != 2 || total != 2 {
		t.Fatalf("counts = %d/%d", d, total)
	}

	// No further transition is possible.
	s.RegisterHit(1, now)
	if s.Phase() != PhaseCompleted {
		t.Fatal("completed must be terminal until restart")
	}
}

func TestRestartHonorsCooldown(t *testing.T) {
	s, platform := newPlayingSession(t)
	s.Tick(true)
	now := time.Now()
	s.RegisterHit(0, now)
	s.RegisterHit(1, now)

	if s.Restart(now.Add(time.Second)) {
		t.Fatal("restart before the cooldown must be rejected")
	}
	if s.Phase() != PhaseCompleted {
		t.Fatalf("phase = %s, want unchanged completed", s.Phase())
	}

	if !s.Restart(now.Add(3100 * time.Millisecond)) {
		t.Fatal("restart after the cooldown must succeed")
	}
	if s.Phase() != PhaseCapture {
		t.Fatalf("phase = %s, want capture", s.Phase())
	}
	d, total := s.Counts()
	if d != 0 || total != 0 {
		t.Fatalf("counts = %d/%d, want reset", d, total)
	}
	if platform.Live() != 0 {
		t.Fatal("anchors must be released on restart")
	}
	if s.Entities().Len() != 0 {
		t.Fatal("entities must be cleared on restart")
	}
}

func TestEndReleasesEverything(t *testing.T) {
	s, platform := newPlayingSession(t)
	s.Tick(true)
	s.End()
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}
	if platform.Live() != 0 {
		t.Fatal("anchors leaked on session end")
	}
}

func TestBeginCalibrationMeshWait(t *testing.T) {
	wall := mesh.Instance{
		Triangles: []mesh.Triangle{{A: mgl64.Vec3{-1, -1, 0}, B: mgl64.Vec3{1, -1, 0}, C: mgl64.Vec3{0, 1, 0}}},
		Pose:      spatial.IdentityPose(),
	}

	withMesh := New(testConfig(), &fakeCamera{}, &fakeSegmenter{},
		Capabilities{RoomMesh: &fakeMeshSource{snap: mesh.Snapshot{Meshes: []mesh.Instance{wall}}}}, nil, quietLog())
	if !withMesh.BeginCalibration(context.Background()) {
		t.Fatal("mesh present, wait must succeed")
	}
	if !withMesh.Calibrating() {
		t.Fatal("calibrating flag not set")
	}

	// Empty source: the bounded poll times out softly.
	empty := New(testConfig(), &fakeCamera{}, &fakeSegmenter{},
		Capabilities{RoomMesh: &fakeMeshSource{}}, nil, quietLog())
	if empty.BeginCalibration(context.Background()) {
		t.Fatal("wait must report false when no mesh ever arrives")
	}
	if !empty.Calibrating() {
		t.Fatal("calibration proceeds even without mesh")
	}

	// No mesh capability at all.
	none := New(testConfig(), &fakeCamera{}, &fakeSegmenter{}, Capabilities{}, nil, quietLog())
	if none.BeginCalibration(context.Background()) {
		t.Fatal("absent capability must report false immediately")
	}
}

func TestFinishCalibrationAppliesParams(t *testing.T) {
	s := New(testConfig(), &fakeCamera{}, &fakeSegmenter{}, Capabilities{}, nil, quietLog())
	p := projection.Params{OffsetX: 0.1, OffsetY: -0.2, Scale: 1.1}
	s.BeginCalibration(context.Background())
	s.FinishCalibration(p)
	if s.CalibrationParams() != p {
		t.Fatalf("params = %+v, want %+v", s.CalibrationParams(), p)
	}
	if s.Calibrating() {
		t.Fatal("calibrating flag must clear")
	}
}
