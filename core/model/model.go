// Package model implements the graph embedding network and its edge
// scoring head: two neighbor-aggregation layers map node features to
// embeddings, and a small perceptron turns an embedding dot product into
// an interaction probability. Forward and backward passes are written
// out by hand over float32 matrices, with gonum BLAS doing the matrix
// products and vek the elementwise work.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/viterin/vek/vek32"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/adalundhe/cinesage/core/graph"
)

// HeadHidden is the width of the scoring head's hidden layer.
const HeadHidden = 16

// ErrStateMismatch is returned when a loaded parameter blob does not
// match the model's tensor shapes.
var ErrStateMismatch = errors.New("parameter state does not match model shape")

// sageLayer computes H' = self(H) + neigh(mean of in-neighbor H) + bias.
type sageLayer struct {
	wSelf  *Tensor // in x out
	wNeigh *Tensor // in x out
	bias   *Tensor // 1 x out
}

// scoringHead maps a scalar embedding dot product through a 1 -> 16 -> 1
// perceptron and a logistic squash. The nonlinearity lets the model
// recalibrate raw similarity instead of trusting its magnitude.
type scoringHead struct {
	w1 *Tensor // 1 x HeadHidden
	b1 *Tensor // 1 x HeadHidden
	w2 *Tensor // HeadHidden x 1
	b2 *Tensor // 1 x 1
}

// Model is the two-layer embedding network plus scoring head. Forward
// passes are deterministic: there is no dropout and no running
// statistics, so identical parameters and graph yield identical
// embeddings.
type Model struct {
	InDim     int
	HiddenDim int
	OutDim    int

	l1   sageLayer
	l2   sageLayer
	head scoringHead

	params []*Tensor
}

// New creates a model with Glorot-uniform weight init from the given
// seed and zero biases.
func New(inDim, hiddenDim, outDim int, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))
	m := &Model{
		InDim:     inDim,
		HiddenDim: hiddenDim,
		OutDim:    outDim,
		l1: sageLayer{
			wSelf:  glorot(inDim, hiddenDim, rng),
			wNeigh: glorot(inDim, hiddenDim, rng),
			bias:   newTensor(1, hiddenDim),
		},
		l2: sageLayer{
			wSelf:  glorot(hiddenDim, outDim, rng),
			wNeigh: glorot(hiddenDim, outDim, rng),
			bias:   newTensor(1, outDim),
		},
		head: scoringHead{
			w1: glorot(1, HeadHidden, rng),
			b1: newTensor(1, HeadHidden),
			w2: glorot(HeadHidden, 1, rng),
			b2: newTensor(1, 1),
		},
	}
	m.params = []*Tensor{
		m.l1.wSelf, m.l1.wNeigh, m.l1.bias,
		m.l2.wSelf, m.l2.wNeigh, m.l2.bias,
		m.head.w1, m.head.b1, m.head.w2, m.head.b2,
	}
	return m
}

func glorot(in, out int, rng *rand.Rand) *Tensor {
	t := newTensor(in, out)
	limit := float32(math.Sqrt(6.0 / float64(in+out)))
	for i := range t.Data {
		t.Data[i] = (rng.Float32()*2 - 1) * limit
	}
	return t
}

// Params returns the trainable tensors in a fixed order. The order is
// part of the checkpoint format.
func (m *Model) Params() []*Tensor {
	return m.params
}

// ZeroGrad clears all gradient accumulators.
func (m *Model) ZeroGrad() {
	for _, p := range m.params {
		p.zeroGrad()
	}
}

// StateDict returns copies of all parameter data in Params order.
func (m *Model) StateDict() [][]float32 {
	out := make([][]float32, len(m.params))
	for i, p := range m.params {
		out[i] = append([]float32(nil), p.Data...)
	}
	return out
}

// LoadState restores parameters from a StateDict-shaped blob.
func (m *Model) LoadState(state [][]float32) error {
	if len(state) != len(m.params) {
		return fmt.Errorf("%w: %d tensors, want %d", ErrStateMismatch, len(state), len(m.params))
	}
	for i, p := range m.params {
		if len(state[i]) != len(p.Data) {
			return fmt.Errorf("%w: tensor %d has %d values, want %d", ErrStateMismatch, i, len(state[i]), len(p.Data))
		}
	}
	for i, p := range m.params {
		copy(p.Data, state[i])
	}
	return nil
}

// Embed runs the full forward pass and returns the Rows x OutDim
// embedding matrix. Node indices in msgs must be local to x; the caller
// renumbers subgraphs.
func (m *Model) Embed(x Matrix, msgs []graph.Edge) Matrix {
	e, _ := m.embed(x, msgs, false)
	return e
}

// embedTape keeps the intermediate activations a backward pass needs.
type embedTape struct {
	x    Matrix
	msgs []graph.Edge
	deg  []float32
	m1   Matrix // mean-aggregated input features
	h1   Matrix // post-ReLU hidden activations
	m2   Matrix // mean-aggregated hidden activations
	e    Matrix // output embeddings
}

func (m *Model) embed(x Matrix, msgs []graph.Edge, keepTape bool) (Matrix, *embedTape) {
	m1, deg := meanAggregate(x, msgs)
	h1 := m.l1.affine(x, m1)
	reluInPlace(h1.Data)
	m2, _ := meanAggregate(h1, msgs)
	e := m.l2.affine(h1, m2)
	if !keepTape {
		return e, nil
	}
	return e, &embedTape{x: x, msgs: msgs, deg: deg, m1: m1, h1: h1, m2: m2, e: e}
}

// affine computes h*wSelf + agg*wNeigh + bias for every row.
func (l sageLayer) affine(h, agg Matrix) Matrix {
	out := NewMatrix(h.Rows, l.wSelf.Cols)
	for i := 0; i < out.Rows; i++ {
		copy(out.Row(i), l.bias.Data)
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, h.general(), l.wSelf.matrix(), 1, out.general())
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, agg.general(), l.wNeigh.matrix(), 1, out.general())
	return out
}

// meanAggregate averages, for every node, the rows of its in-neighbors
// under msgs. Nodes with no incoming message keep a zero row. Also
// returns the in-degree vector for the backward pass.
func meanAggregate(h Matrix, msgs []graph.Edge) (Matrix, []float32) {
	out := NewMatrix(h.Rows, h.Cols)
	deg := make([]float32, h.Rows)
	for _, e := range msgs {
		vek32.Add_Inplace(out.Row(int(e.Dst)), h.Row(int(e.Src)))
		deg[e.Dst]++
	}
	for i, d := range deg {
		if d > 1 {
			vek32.MulNumber_Inplace(out.Row(i), 1/d)
		}
	}
	return out, deg
}

// meanAggregateBackward scatters dOut back to the aggregation inputs:
// dH[src] += dOut[dst] / deg[dst] for every message src -> dst. dH is
// accumulated into, not overwritten.
func meanAggregateBackward(dOut Matrix, msgs []graph.Edge, deg []float32, dH Matrix) {
	// Scale a copy once instead of per edge; high-degree nodes appear
	// in many messages.
	scaled := NewMatrix(dOut.Rows, dOut.Cols)
	copy(scaled.Data, dOut.Data)
	for i, d := range deg {
		if d > 1 {
			vek32.MulNumber_Inplace(scaled.Row(i), 1/d)
		}
	}
	for _, e := range msgs {
		vek32.Add_Inplace(dH.Row(int(e.Src)), scaled.Row(int(e.Dst)))
	}
}

func reluInPlace(x []float32) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// Score returns the interaction probability for one embedding pair.
func (m *Model) Score(userEmb, itemEmb []float32) float32 {
	return m.ScoreDot(vek32.Dot(userEmb, itemEmb))
}

// ScoreDot maps a precomputed embedding dot product to an interaction
// probability. Callers that batch the dot products (one matrix product
// over the embedding cache) use this instead of Score.
func (m *Model) ScoreDot(dot float32) float32 {
	logit := m.head.logit(dot, nil)
	return sigmoid(logit)
}

// logit runs the head MLP on one dot product. When hidden is non-nil it
// must have HeadHidden capacity and receives the post-ReLU activations
// for the backward pass.
func (h scoringHead) logit(dot float32, hidden []float32) float32 {
	logit := h.b2.Data[0]
	for j := 0; j < HeadHidden; j++ {
		z := h.w1.Data[j]*dot + h.b1.Data[j]
		if z < 0 {
			z = 0
		}
		if hidden != nil {
			hidden[j] = z
		}
		logit += h.w2.Data[j] * z
	}
	return logit
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
