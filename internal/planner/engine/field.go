package engine

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"gonum.org/v1/gonum/mat"

	"mazeplan.ai/internal/planner/grid"
)

// Field is the utility estimate for every non-wall cell. Two matrices are kept:
// a sweep reads cur and writes next, then the two swap.
type Field struct {
	width  int
	height int
	walls  []bool

	cur  *mat.Dense
	next *mat.Dense
}

func newField(g *grid.Map) *Field {
	w, h := g.Dimensions()
	f := &Field{
		width:  w,
		height: h,
		walls:  make([]bool, w*h),
		cur:    mat.NewDense(h, w, nil),
		next:   mat.NewDense(h, w, nil),
	}
	for _, p := range g.Walls() {
		f.walls[p.Y*w+p.X] = true
	}
	return f
}

func (f *Field) defined(p grid.Position) bool {
	if p.X < 0 || p.X >= f.width || p.Y < 0 || p.Y >= f.height {
		return false
	}
	return !f.walls[p.Y*f.width+p.X]
}

// At returns the utility of a non-wall cell; false for walls and positions
// outside the grid.
func (f *Field) At(p grid.Position) (float64, bool) {
	if !f.defined(p) {
		return 0, false
	}
	return f.cur.At(p.Y, p.X), true
}

func (f *Field) set(p grid.Position, v float64) {
	f.cur.Set(p.Y, p.X, v)
}

func (f *Field) swap() { f.cur, f.next = f.next, f.cur }

func (f *Field) Dimensions() (width, height int) { return f.width, f.height }

// Rows copies the field indexed [y][x]; walls read NaN.
func (f *Field) Rows() [][]float64 {
	out := make([][]float64, f.height)
	for y := 0; y < f.height; y++ {
		out[y] = make([]float64, f.width)
		for x := 0; x < f.width; x++ {
			if f.walls[y*f.width+x] {
				out[y][x] = math.NaN()
				continue
			}
			out[y][x] = f.cur.At(y, x)
		}
	}
	return out
}

// Digest hashes the exact bits of every defined utility, so two fields share a
// digest only when they are bit-identical.
func (f *Field) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(f.width))
	h.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(f.height))
	h.Write(tmp[:])
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			if f.walls[y*f.width+x] {
				continue
			}
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(f.cur.At(y, x)))
			h.Write(tmp[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
