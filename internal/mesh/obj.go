package mesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// LoadOBJ reads a Wavefront OBJ file as a triangle soup. Only v and f
// records are used; polygons are triangulated as fans. Indices may be
// 1-based or negative (relative to the end of the vertex list).
func LoadOBJ(path string) ([]Triangle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mesh: open obj: %w", err)
	}
	defer f.Close()

	var verts []mgl64.Vec3
	var tris []Triangle

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh: obj line %d: short vertex", line)
			}
			var p mgl64.Vec3
			for i := 0; i < 3; i++ {
				p[i], err = strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("mesh: obj line %d: %w", line, err)
				}
			}
			verts = append(verts, p)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("mesh: obj line %d: face with fewer than 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				i, err := objIndex(ref, len(verts))
				if err != nil {
					return nil, fmt.Errorf("mesh: obj line %d: %w", line, err)
				}
				idx = append(idx, i)
			}
			for i := 1; i+1 < len(idx); i++ {
				tris = append(tris, Triangle{A: verts[idx[0]], B: verts[idx[i]], C: verts[idx[i+1]]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mesh: read obj: %w", err)
	}
	return tris, nil
}

// objIndex resolves a face vertex reference ("7", "7/2/1", "-1") to a
// zero-based vertex index.
func objIndex(ref string, nVerts int) (int, error) {
	if slash := strings.IndexByte(ref, '/'); slash >= 0 {
		ref = ref[:slash]
	}
	i, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q: %w", ref, err)
	}
	if i < 0 {
		i = nVerts + i
	} else {
		i--
	}
	if i < 0 || i >= nVerts {
		return 0, fmt.Errorf("face index %q out of range", ref)
	}
	return i, nil
}
