// Command maskdump extracts the masks and inpaint crops from a saved
// segmentation response and writes them out as WebP files for inspection.
package main

import (
	"flag"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/HugoSmits86/nativewebp"

	"dr-shooter/internal/segment"
)

func main() {
	responseFile := flag.String("response", "", "Segmentation response JSON to dump")
	outputDir := flag.String("output", "masks-out", "Output directory")
	tight := flag.Bool("tight", false, "Crop each mask to its lit bounds")

	flag.Parse()

	if *responseFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -response is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(*responseFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	resp, err := segment.DecodeResponse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	written, failed := 0, 0
	for _, m := range resp.Masks {
		img, err := segment.DecodeImage(m.Data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mask %d: %v\n", m.ID, err)
			failed++
			continue
		}
		if *tight {
			if bounds, ok := segment.TightBounds(img); ok {
				img = img.SubImage(bounds).(*image.NRGBA)
			}
		}
		if err := writeWebP(filepath.Join(*outputDir, fmt.Sprintf("mask-%02d.webp", m.ID)), img); err != nil {
			fmt.Fprintf(os.Stderr, "mask %d: %v\n", m.ID, err)
			failed++
			continue
		}
		written++

		if m.InpaintData != "" {
			crop, err := segment.InpaintImage(m)
			if err != nil {
				fmt.Fprintf(os.Stderr, "mask %d inpaint: %v\n", m.ID, err)
				failed++
				continue
			}
			if err := writeWebP(filepath.Join(*outputDir, fmt.Sprintf("inpaint-%02d.webp", m.ID)), crop); err != nil {
				fmt.Fprintf(os.Stderr, "mask %d inpaint: %v\n", m.ID, err)
				failed++
				continue
			}
			written++
		}
	}

	if resp.CombinedInpaintData != "" {
		img, err := segment.DecodeImage(resp.CombinedInpaintData)
		if err != nil {
			fmt.Fprintf(os.Stderr, "combined inpaint: %v\n", err)
			failed++
		} else if err := writeWebP(filepath.Join(*outputDir, "inpaint-combined.webp"), img); err != nil {
			fmt.Fprintf(os.Stderr, "combined inpaint: %v\n", err)
			failed++
		} else {
			written++
		}
	}

	fmt.Printf("Wrote %d files to %s\n", written, *outputDir)
	if failed > 0 {
		fmt.Printf("Failed: %d\n", failed)
		os.Exit(1)
	}
}

func writeWebP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := nativewebp.Encode(f, img, nil); err != nil {
		return fmt.Errorf("WebP encode: %v", err)
	}
	return nil
}
