package model

import (
	"gonum.org/v1/gonum/blas/blas32"
)

// Matrix is a flat row-major float32 matrix. Row-major contiguous
// storage keeps the BLAS calls stride-1 and cache friendly.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed Rows x Cols matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// Row returns the i-th row as a slice view.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

func (m Matrix) general() blas32.General {
	return blas32.General{Rows: m.Rows, Cols: m.Cols, Stride: m.Cols, Data: m.Data}
}

// Tensor is a trainable parameter matrix with its gradient accumulator.
type Tensor struct {
	Rows, Cols int
	Data       []float32
	Grad       []float32
}

func newTensor(rows, cols int) *Tensor {
	return &Tensor{
		Rows: rows,
		Cols: cols,
		Data: make([]float32, rows*cols),
		Grad: make([]float32, rows*cols),
	}
}

func (t *Tensor) matrix() blas32.General {
	return blas32.General{Rows: t.Rows, Cols: t.Cols, Stride: t.Cols, Data: t.Data}
}

func (t *Tensor) gradMatrix() blas32.General {
	return blas32.General{Rows: t.Rows, Cols: t.Cols, Stride: t.Cols, Data: t.Grad}
}

func (t *Tensor) zeroGrad() {
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}
