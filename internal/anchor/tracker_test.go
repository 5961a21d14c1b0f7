package anchor

import (
	"errors"
	"io"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"dr-shooter/internal/placement"
)

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func entities(n int) []*placement.Entity {
	out := make([]*placement.Entity, n)
	for i := range out {
		out[i] = &placement.Entity{
			ID:          i,
			Position:    mgl64.Vec3{float64(i), 0, -2},
			Orientation: mgl64.QuatIdent(),
			Visible:     true,
		}
	}
	return out
}

func TestCreateAnchorsIdempotent(t *testing.T) {
	p := NewSimPlatform()
	tr := NewTracker(p, quietLog())
	es := entities(3)

	for i := 0; i < 4; i++ {
		tr.CreateAnchors(es)
	}
	if p.Live() != 3 {
		t.Fatalf("platform holds %d anchors, want 3 after repeated calls", p.Live())
	}
	if tr.AnchorCount(es) != 3 {
		t.Fatalf("anchored = %d, want 3", tr.AnchorCount(es))
	}
}

func TestCreateAnchorsNoPlatform(t *testing.T) {
	tr := NewTracker(nil, quietLog())
	es := entities(2)
	tr.CreateAnchors(es)
	if tr.Supported() {
		t.Fatal("nil platform must report unsupported")
	}
	if tr.AnchorCount(es) != 0 {
		t.Fatal("entities must stay unanchored without a platform")
	}
}

func TestCreateAnchorsFailureIsAttemptedOnce(t *testing.T) {
	p := NewSimPlatform()
	p.FailCreate = errors.New("tracking not ready")
	tr := NewTracker(p, quietLog())
	es := entities(1)

	tr.CreateAnchors(es)
	p.FailCreate = nil
	tr.CreateAnchors(es) // must not retry
	if tr.AnchorCount(es) != 0 {
		t.Fatal("failed entity must stay permanently unanchored")
	}
}

func TestUpdatePosesCorrectsDrift(t *testing.T) {
	p := NewSimPlatform()
	tr := NewTracker(p, quietLog())
	es := entities(2)
	tr.CreateAnchors(es)

	p.Shift(0.1, 0, -0.05)
	tr.UpdatePoses(es)

	for i, e := range es {
		want := mgl64.Vec3{float64(i) + 0.1, 0, -2.05}
		if e.Position != want {
			t.Fatalf("entity %d position = %v, want %v", i, e.Position, want)
		}
	}
}

func TestUpdatePosesLeavesUnanchoredUntouched(t *testing.T) {
	tr := NewTracker(nil, quietLog())
	es := entities(2)
	before := *es[0]

	tr.UpdatePoses(es)
	if es[0].Position != before.Position || es[0].Orientation != before.Orientation {
		t.Fatal("unanchored entity transform changed")
	}
}

func TestUpdatePosesSkipsLostAnchor(t *testing.T) {
	p := NewSimPlatform()
	tr := NewTracker(p, quietLog())
	es := entities(1)
	tr.CreateAnchors(es)

	es[0].Anchor.(*SimAnchor).Lost = true
	p.Shift(1, 1, 1)
	before := es[0].Position
	tr.UpdatePoses(es)
	if es[0].Position != before {
		t.Fatal("lost anchor must leave the transform untouched")
	}

	// Anchor recovers on a later frame.
	es[0].Anchor.(*SimAnchor).Lost = false
	tr.UpdatePoses(es)
	if es[0].Position == before {
		t.Fatal("recovered anchor must correct the transform again")
	}
}

func TestDisposeReleasesHandles(t *testing.T) {
	p := NewSimPlatform()
	tr := NewTracker(p, quietLog())
	es := entities(3)
	tr.CreateAnchors(es)

	handles := make([]*SimAnchor, 0, 3)
	for _, e := range es {
		handles = append(handles, e.Anchor.(*SimAnchor))
	}

	tr.Dispose(es)
	if p.Live() != 0 {
		t.Fatalf("%d anchors still live after Dispose", p.Live())
	}
	for _, h := range handles {
		if !h.Released() {
			t.Fatal("handle not released")
		}
	}
	for _, e := range es {
		if e.Anchor != nil {
			t.Fatal("entity still holds a released handle")
		}
	}

	// A fresh round may anchor the same ids again.
	tr.CreateAnchors(es)
	if tr.AnchorCount(es) != 3 {
		t.Fatal("Dispose must reset the attempted set")
	}
}
