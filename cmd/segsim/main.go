// Command segsim is a stand-in for the segmentation service. It accepts the
// real request schema and returns deterministic synthetic masks, so rounds
// can be exercised end to end without a GPU.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	"dr-shooter/internal/logging"
	"dr-shooter/internal/segment"
)

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	masks := flag.Int("masks", 3, "Number of synthetic masks per request")
	flag.Parse()

	log := logging.NewLogger()
	validate := validator.New()

	app := fiber.New(fiber.Config{
		AppName:     "segsim",
		BodyLimit:   50 * 1024 * 1024,
		JSONEncoder: jsoniter.Marshal,
		JSONDecoder: jsoniter.Unmarshal,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"service": "segsim synthetic segmentation",
			"endpoints": fiber.Map{
				"http": "POST /segment",
			},
		})
	})

	app.Post("/segment", func(c *fiber.Ctx) error {
		start := time.Now()

		var req segment.Request
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(failure(fmt.Sprintf("bad request: %v", err)))
		}
		if err := validate.Struct(req); err != nil {
			return c.JSON(failure(fmt.Sprintf("invalid request: %v", err)))
		}

		img, err := segment.DecodeImage(req.Image)
		if err != nil {
			return c.JSON(failure(fmt.Sprintf("decode image: %v", err)))
		}
		w, h := img.Bounds().Dx(), img.Bounds().Dy()

		n := *masks
		if n > req.MaxMasks {
			n = req.MaxMasks
		}
		resp := synthesize(w, h, n, req.CombinedInpaint)
		resp.ProcessingTime = time.Since(start).Seconds()

		log.WithFields(map[string]interface{}{
			"masks": resp.Count,
			"size":  fmt.Sprintf("%dx%d", w, h),
		}).Info("segmented")

		return c.JSON(resp)
	})

	log.WithField("addr", *addr).Info("segsim listening")
	if err := app.Listen(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func failure(msg string) segment.Response {
	return segment.Response{Success: false, Error: msg}
}

// synthesize lays n square masks along the image diagonal, each a quarter
// of the frame height, so placements land at predictable spots.
func synthesize(w, h, n int, combined bool) segment.Response {
	resp := segment.Response{
		Success:   true,
		ImageSize: [2]int{w, h},
	}

	side := h / 4
	for i := 0; i < n; i++ {
		// Evenly spaced centers along the diagonal, inset from the edges.
		t := (float64(i) + 1) / (float64(n) + 1)
		cx := int(t * float64(w))
		cy := int(t * float64(h))
		x0, y0 := cx-side/2, cy-side/2
		x1, y1 := x0+side, y0+side

		mask := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				if x >= 0 && x < w && y >= 0 && y < h {
					mask.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
				}
			}
		}

		m := segment.Mask{
			ID:     i,
			Data:   encodePNG(mask),
			Width:  w,
			Height: h,
			BBox:   []float64{float64(x0), float64(y0), float64(x1), float64(y1)},
			Color:  maskColor(i),
		}
		if !combined {
			// Inpaint crop: bbox padded by 15%, clamped to the frame.
			pad := int(float64(side) * 0.15)
			ix0, iy0 := clamp(x0-pad, 0, w), clamp(y0-pad, 0, h)
			ix1, iy1 := clamp(x1+pad, 0, w), clamp(y1+pad, 0, h)
			crop := image.NewNRGBA(image.Rect(0, 0, ix1-ix0, iy1-iy0))
			m.InpaintData = encodePNG(crop)
			m.InpaintBBox = []int{ix0, iy0, ix1, iy1}
		}
		resp.Masks = append(resp.Masks, m)
	}
	resp.Count = len(resp.Masks)

	if combined {
		blank := image.NewNRGBA(image.Rect(0, 0, w, h))
		resp.CombinedInpaintData = encodePNG(blank)
	}
	return resp
}

// maskColor follows the golden-ratio hue walk the real service uses so
// overlay colors stay visually distinct.
func maskColor(index int) [3]int {
	const goldenRatio = 0.618033988749895
	hue := math.Mod(float64(index)*goldenRatio, 1.0)
	r, g, b := hsvToRGB(hue, 0.7, 0.9)
	return [3]int{int(r * 255), int(g * 255), int(b * 255)}
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	switch i % 6 {
	case 0:
		return v, t, p
	case 1:
		return q, v, p
	case 2:
		return p, v, t
	case 3:
		return p, q, v
	case 4:
		return t, p, v
	default:
		return v, p, q
	}
}

func encodePNG(img image.Image) string {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return ""
	}
	return segment.EncodeImageBase64(buf.Bytes())
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
