package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// System is a square real linear system A x = b stored in the sparse
// LU solver. Indices are 1-based, as in the solver.
//
// The solver reorders its rows and columns on the first Factor, after which
// GetElement no longer accepts external indices. Every element is therefore
// looked up once in setupElements and written through its pointer.
type System struct {
	Size     int
	matrix   *sparse.Matrix
	elements [][]*sparse.Element // [row][col], 1-based
	rhs      []float64
	solution []float64
	config   *sparse.Configuration
}

func NewSystem(size int) (*System, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid system size %d", size)
	}

	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %v", err)
	}

	sys := &System{
		Size:     size,
		matrix:   mat,
		rhs:      make([]float64, size+1), // 1-based indexing
		solution: make([]float64, size+1),
		config:   config,
	}
	sys.setupElements()

	return sys, nil
}

func (s *System) setupElements() {
	s.elements = make([][]*sparse.Element, s.Size+1)
	for i := 1; i <= s.Size; i++ {
		s.elements[i] = make([]*sparse.Element, s.Size+1)
		for j := 1; j <= s.Size; j++ {
			s.elements[i][j] = s.matrix.GetElement(int64(i), int64(j))
		}
	}
}

func (s *System) AddElement(i, j int, value float64) error {
	if i <= 0 || j <= 0 || i > s.Size || j > s.Size {
		return fmt.Errorf("matrix index out of bounds (i=%d, j=%d, size=%d)", i, j, s.Size)
	}
	s.elements[i][j].Real += value
	return nil
}

func (s *System) AddRHS(i int, value float64) error {
	if i <= 0 || i > s.Size {
		return fmt.Errorf("rhs index out of bounds (i=%d, size=%d)", i, s.Size)
	}
	s.rhs[i] += value
	return nil
}

// Element returns the current value of A[i][j]. Only meaningful before Solve,
// which overwrites the matrix with its LU factors.
func (s *System) Element(i, j int) float64 {
	if i <= 0 || j <= 0 || i > s.Size || j > s.Size {
		return 0
	}
	return s.elements[i][j].Real
}

// ScaleDiagonal multiplies every diagonal element by (1 + lambda).
func (s *System) ScaleDiagonal(lambda float64) {
	for i := 1; i <= s.Size; i++ {
		s.elements[i][i].Real *= 1 + lambda
	}
}

func (s *System) Clear() {
	s.matrix.Clear()
	for i := range s.rhs {
		s.rhs[i] = 0
	}
}

func (s *System) Solve() error {
	var err error

	err = s.matrix.Factor()
	if err != nil {
		return fmt.Errorf("matrix factorization failed: %v", err)
	}

	s.solution, err = s.matrix.Solve(s.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %v", err)
	}

	return nil
}

func (s *System) Solution() []float64 {
	return s.solution
}

func (s *System) Destroy() {
	if s.matrix != nil {
		s.matrix.Destroy()
	}
}
