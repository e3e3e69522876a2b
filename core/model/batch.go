package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/adalundhe/cinesage/core/graph"
)

// BatchTape is the forward-pass record for one minibatch of labeled
// edges: the embedding activations plus the scoring head state per
// edge. It is consumed by BackwardBatch.
type BatchTape struct {
	tape   *embedTape
	pairs  [][2]int32
	labels []float32

	dots   []float32 // raw embedding dot per edge
	hidden []float32 // pairs x HeadHidden post-ReLU head activations
	Probs  []float32 // predicted interaction probability per edge
	Loss   float64   // mean binary cross-entropy over the batch
}

// ForwardBatch embeds the (sub)graph in x/msgs and scores the labeled
// edge endpoints given by pairs (local node indices). Loss is the mean
// binary cross-entropy against labels, computed from logits for
// numerical stability.
func (m *Model) ForwardBatch(x Matrix, msgs []graph.Edge, pairs [][2]int32, labels []float32) (*BatchTape, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	if len(pairs) != len(labels) {
		return nil, fmt.Errorf("batch has %d edges but %d labels", len(pairs), len(labels))
	}

	_, tape := m.embed(x, msgs, true)
	bt := &BatchTape{
		tape:   tape,
		pairs:  pairs,
		labels: labels,
		dots:   make([]float32, len(pairs)),
		hidden: make([]float32, len(pairs)*HeadHidden),
		Probs:  make([]float32, len(pairs)),
	}

	var total float64
	for b, pair := range pairs {
		u := tape.e.Row(int(pair[0]))
		i := tape.e.Row(int(pair[1]))
		dot := dot32(u, i)
		bt.dots[b] = dot

		logit := m.head.logit(dot, bt.hidden[b*HeadHidden:(b+1)*HeadHidden])
		bt.Probs[b] = sigmoid(logit)

		z := float64(logit)
		y := float64(labels[b])
		total += math.Max(z, 0) - z*y + math.Log1p(math.Exp(-math.Abs(z)))
	}
	bt.Loss = total / float64(len(pairs))
	return bt, nil
}

// BackwardBatch backpropagates the batch loss through the scoring head
// and both embedding layers, accumulating into every parameter's Grad.
// Call ZeroGrad first unless gradients should accumulate across batches.
func (m *Model) BackwardBatch(bt *BatchTape) {
	tape := bt.tape
	batch := float32(len(bt.pairs))

	// Head backward, plus gradient w.r.t. the endpoint embeddings.
	dE := NewMatrix(tape.e.Rows, tape.e.Cols)
	for b, pair := range bt.pairs {
		dLogit := (bt.Probs[b] - bt.labels[b]) / batch
		hidden := bt.hidden[b*HeadHidden : (b+1)*HeadHidden]

		m.head.b2.Grad[0] += dLogit
		var dDot float32
		for j := 0; j < HeadHidden; j++ {
			m.head.w2.Grad[j] += dLogit * hidden[j]
			if hidden[j] > 0 {
				dz := dLogit * m.head.w2.Data[j]
				m.head.w1.Grad[j] += dz * bt.dots[b]
				m.head.b1.Grad[j] += dz
				dDot += dz * m.head.w1.Data[j]
			}
		}

		uRow := tape.e.Row(int(pair[0]))
		iRow := tape.e.Row(int(pair[1]))
		axpy(dDot, iRow, dE.Row(int(pair[0])))
		axpy(dDot, uRow, dE.Row(int(pair[1])))
	}

	// Layer 2: e = h1*wSelf + m2*wNeigh + bias.
	m.l2.accumulateGrads(tape.h1, tape.m2, dE)
	dH1 := NewMatrix(tape.h1.Rows, tape.h1.Cols)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, dE.general(), m.l2.wSelf.matrix(), 0, dH1.general())
	dM2 := NewMatrix(tape.m2.Rows, tape.m2.Cols)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, dE.general(), m.l2.wNeigh.matrix(), 0, dM2.general())
	meanAggregateBackward(dM2, tape.msgs, tape.deg, dH1)

	// ReLU mask: h1 holds the post-activation values.
	for i, v := range tape.h1.Data {
		if v <= 0 {
			dH1.Data[i] = 0
		}
	}

	// Layer 1: h1 = relu(x*wSelf + m1*wNeigh + bias). Input features
	// are leaves, so no gradient flows past this layer.
	m.l1.accumulateGrads(tape.x, tape.m1, dH1)
}

// accumulateGrads adds the weight and bias gradients of one affine
// layer given its two inputs and the gradient of its output.
func (l sageLayer) accumulateGrads(h, agg, dOut Matrix) {
	blas32.Gemm(blas.Trans, blas.NoTrans, 1, h.general(), dOut.general(), 1, l.wSelf.gradMatrix())
	blas32.Gemm(blas.Trans, blas.NoTrans, 1, agg.general(), dOut.general(), 1, l.wNeigh.gradMatrix())
	for i := 0; i < dOut.Rows; i++ {
		row := dOut.Row(i)
		for j, v := range row {
			l.bias.Grad[j] += v
		}
	}
}

func axpy(alpha float32, x, y []float32) {
	blas32.Axpy(alpha,
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		blas32.Vector{N: len(y), Inc: 1, Data: y})
}

func dot32(x, y []float32) float32 {
	return blas32.Dot(
		blas32.Vector{N: len(x), Inc: 1, Data: x},
		blas32.Vector{N: len(y), Inc: 1, Data: y})
}
