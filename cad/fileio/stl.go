package fileio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/BaSui01/agentcad/cad/model"
	"github.com/BaSui01/agentcad/internal/pool"
)

// Triangle is one tessellated facet.
type Triangle struct {
	Normal   model.Vec3
	Vertices [3]model.Vec3
}

// stlHeaderSize is the fixed binary STL preamble length.
const stlHeaderSize = 80

// TessellateBox meshes an axis-aligned box into at least minTriangles
// facets by uniformly subdividing each face into a grid. Twelve is the
// floor (two facets per face); counts then grow with the grid so the
// preset monotonicity contract holds for any solid.
func TessellateBox(bbox model.BoundingBox, minTriangles int) []Triangle {
	// facets per face = 2*n*n; solve the smallest n meeting the target.
	n := 1
	for 12*n*n < minTriangles {
		n++
	}

	size := model.Vec3{
		bbox.Max[0] - bbox.Min[0],
		bbox.Max[1] - bbox.Min[1],
		bbox.Max[2] - bbox.Min[2],
	}

	var tris []Triangle
	// Each face is described by its fixed axis, the offset along it, the
	// two varying axes, and the outward normal sign.
	faces := []struct {
		fixed  int
		offset float64
		u, v   int
		sign   float64
	}{
		{0, bbox.Min[0], 1, 2, -1},
		{0, bbox.Max[0], 1, 2, +1},
		{1, bbox.Min[1], 0, 2, -1},
		{1, bbox.Max[1], 0, 2, +1},
		{2, bbox.Min[2], 0, 1, -1},
		{2, bbox.Max[2], 0, 1, +1},
	}

	for _, f := range faces {
		var normal model.Vec3
		normal[f.fixed] = f.sign
		du := size[f.u] / float64(n)
		dv := size[f.v] / float64(n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				corner := func(di, dj int) model.Vec3 {
					var p model.Vec3
					p[f.fixed] = f.offset
					p[f.u] = bbox.Min[f.u] + float64(i+di)*du
					p[f.v] = bbox.Min[f.v] + float64(j+dj)*dv
					return p
				}
				a, b, c, d := corner(0, 0), corner(1, 0), corner(1, 1), corner(0, 1)
				tris = append(tris,
					Triangle{Normal: normal, Vertices: [3]model.Vec3{a, b, c}},
					Triangle{Normal: normal, Vertices: [3]model.Vec3{a, c, d}},
				)
			}
		}
	}
	return tris
}

// ExportSTLBinary writes the standard binary STL layout: an 80-byte
// header, a uint32 facet count, then per facet a float32 normal, three
// float32 vertices, and a uint16 attribute word. Facets are staged in
// a pooled buffer so large exports don't thrash the allocator.
func ExportSTLBinary(w io.Writer, name string, tris []Triangle) error {
	var header [stlHeaderSize]byte
	copy(header[:], name)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing STL header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(tris))); err != nil {
		return fmt.Errorf("writing STL facet count: %w", err)
	}

	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	for _, t := range tris {
		record := make([]float32, 0, 12)
		record = append(record, float32(t.Normal[0]), float32(t.Normal[1]), float32(t.Normal[2]))
		for _, v := range t.Vertices {
			record = append(record, float32(v[0]), float32(v[1]), float32(v[2]))
		}
		if err := binary.Write(buf, binary.LittleEndian, record); err != nil {
			return fmt.Errorf("encoding STL facet: %w", err)
		}
		if err := binary.Write(buf, binary.LittleEndian, uint16(0)); err != nil {
			return fmt.Errorf("encoding STL attribute: %w", err)
		}
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing STL facets: %w", err)
	}
	return nil
}

// ExportSTLASCII writes the opt-in ASCII STL form.
func ExportSTLASCII(w io.Writer, name string, tris []Triangle) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "solid %s\n", name)
	for _, t := range tris {
		fmt.Fprintf(bw, "  facet normal %g %g %g\n", t.Normal[0], t.Normal[1], t.Normal[2])
		fmt.Fprintf(bw, "    outer loop\n")
		for _, v := range t.Vertices {
			fmt.Fprintf(bw, "      vertex %g %g %g\n", v[0], v[1], v[2])
		}
		fmt.Fprintf(bw, "    endloop\n")
		fmt.Fprintf(bw, "  endfacet\n")
	}
	fmt.Fprintf(bw, "endsolid %s\n", name)
	return bw.Flush()
}

// ReadSTLBinaryCount reads back the facet count of a binary STL stream,
// used to verify the preset monotonicity contract.
func ReadSTLBinaryCount(r io.Reader) (int, error) {
	var header [stlHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, fmt.Errorf("reading STL header: %w", err)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, fmt.Errorf("reading STL facet count: %w", err)
	}
	if count > math.MaxInt32 {
		return 0, fmt.Errorf("import failed: facet count %d out of range", count)
	}
	return int(count), nil
}
