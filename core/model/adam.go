package model

import "math"

// Adam is the adaptive-gradient optimizer used for training, with the
// usual (0.9, 0.999, 1e-8) moment defaults and a fixed learning rate.
type Adam struct {
	lr    float32
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

// NewAdam creates an optimizer with moment buffers shaped to params.
func NewAdam(params []*Tensor, lr float32) *Adam {
	a := &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([][]float64, len(params)),
		v:     make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// Step applies one bias-corrected Adam update from the accumulated
// gradients. params must be the same slice NewAdam saw.
func (a *Adam) Step(params []*Tensor) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range params {
		m, v := a.m[i], a.v[i]
		for j, g32 := range p.Grad {
			g := float64(g32)
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			p.Data[j] -= a.lr * float32(mHat/(math.Sqrt(vHat)+a.eps))
		}
	}
}
