// Command round runs one capture round offline: it sends an image to the
// segmentation service (or reads a canned response), places every mask in
// world space against optional room geometry, and prints the placements.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"
	"github.com/quasilyte/gdata/v2"

	"dr-shooter/internal/anchor"
	"dr-shooter/internal/calibration"
	"dr-shooter/internal/config"
	"dr-shooter/internal/logging"
	"dr-shooter/internal/mesh"
	"dr-shooter/internal/placement"
	"dr-shooter/internal/segment"
	"dr-shooter/internal/spatial"
)

func main() {
	configFile := flag.String("config", "", "Path to config.yaml file")
	imageFile := flag.String("image", "", "Path to the captured image (png/jpeg/tga)")
	responseFile := flag.String("response", "", "Canned segmentation response JSON (skips the service)")
	serviceURL := flag.String("url", "", "Segmentation service URL (default: config or http://localhost:8000)")
	depthMode := flag.String("depth", "", "Depth mode: none, center, multiPoint")
	fixedDepth := flag.Float64("fixed-depth", 0, "Fallback placement distance in meters")
	meshFile := flag.String("mesh", "", "Room geometry OBJ for depth raycasts")
	simAnchors := flag.Bool("anchors", false, "Attach simulated spatial anchors to placements")
	dumpDir := flag.String("dump", "", "Write decoded masks to this directory as WebP")

	flag.Parse()

	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg.Resolve(config.Flags{
		ServiceURL: *serviceURL,
		DepthMode:  *depthMode,
		FixedDepth: *fixedDepth,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger()

	resp, width, height, err := segmentImage(cfg, *imageFile, *responseFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Masks: %d (image %dx%d)\n", len(resp.Masks), width, height)
	if len(resp.Masks) == 0 {
		os.Exit(0)
	}

	// Persisted calibration, compiled-in fallback when unavailable.
	var store *calibration.Store
	if manager, err := gdata.Open(gdata.Config{AppName: "dr-shooter"}); err == nil {
		store = calibration.NewStore(manager)
	} else {
		store = calibration.NewStore(nil)
	}
	params, _ := store.Load()

	var resolver placement.Resolver
	if *meshFile != "" {
		tris, err := mesh.LoadOBJ(*meshFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading mesh: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Mesh: %d triangles\n", len(tris))
		resolver = mesh.Snapshot{Meshes: []mesh.Instance{{
			Triangles: tris,
			Pose:      spatial.IdentityPose(),
		}}}
	}

	pcfg := cfg.Placement()
	pcfg.Calibration = params
	orch := placement.NewOrchestrator(pcfg, resolver, log)

	frame := placement.CapturedFrame{
		Width:  width,
		Height: height,
		Camera: spatial.IdentityPose(),
	}

	entities := placement.NewSet()
	placed := orch.PlaceAll(frame, resp.Masks, entities)

	fmt.Printf("Calibration: offsetX=%+.4f offsetY=%+.4f scale=%.3f\n",
		params.OffsetX, params.OffsetY, params.Scale)
	fmt.Println("------------------------------------------------------------")
	for _, e := range placed {
		mark := ""
		if e.Degraded {
			mark = "  (fixed depth)"
		}
		fmt.Printf("mask %2d  pos (%+.3f, %+.3f, %+.3f)  size %.2fx%.2fm  scale %.3f%s\n",
			e.ID, e.Position.X(), e.Position.Y(), e.Position.Z(),
			e.Width, e.Height, e.Scale, mark)
	}

	if *simAnchors {
		platform := anchor.NewSimPlatform()
		tracker := anchor.NewTracker(platform, log)
		tracker.CreateAnchors(entities.All())
		fmt.Println("------------------------------------------------------------")
		fmt.Printf("Anchors: %d/%d\n", tracker.AnchorCount(entities.All()), entities.Len())
	}

	if *dumpDir != "" {
		if err := dumpMasks(*dumpDir, resp.Masks); err != nil {
			fmt.Fprintf(os.Stderr, "Error dumping masks: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Masks written to %s\n", *dumpDir)
	}
}

func dumpMasks(dir string, masks []segment.Mask) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, m := range masks {
		img, err := segment.DecodeImage(m.Data)
		if err != nil {
			return fmt.Errorf("mask %d: %w", m.ID, err)
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("mask-%02d.webp", m.ID)))
		if err != nil {
			return err
		}
		if err := nativewebp.Encode(f, img, nil); err != nil {
			f.Close()
			return fmt.Errorf("mask %d: WebP encode: %v", m.ID, err)
		}
		f.Close()
	}
	return nil
}

// segmentImage produces a segmentation response either from a canned JSON
// file or by calling the service with the image.
func segmentImage(cfg config.Config, imageFile, responseFile string) (*segment.Response, int, int, error) {
	if responseFile != "" {
		data, err := os.ReadFile(responseFile)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read response: %w", err)
		}
		resp, err := segment.DecodeResponse(data)
		if err != nil {
			return nil, 0, 0, err
		}
		return resp, resp.ImageSize[0], resp.ImageSize[1], nil
	}

	if imageFile == "" {
		return nil, 0, 0, fmt.Errorf("one of -image or -response is required")
	}
	data, err := os.ReadFile(imageFile)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()

	req := cfg.Request()
	req.Image = segment.EncodeImageBase64(data)

	client := segment.NewClient(cfg.ServiceURL, cfg.Timeout())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	resp, err := client.Segment(ctx, req)
	if err != nil {
		return nil, 0, 0, err
	}
	return resp, bounds.Dx(), bounds.Dy(), nil
}
