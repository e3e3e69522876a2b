// Package trainer fits the embedding model with minibatched link
// prediction: labeled rating edges are split into train and validation
// sets, each batch pulls a bounded-fanout neighborhood subgraph, and
// parameters follow Adam on a binary cross-entropy loss.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/google/uuid"

	"github.com/adalundhe/cinesage/core/checkpoint"
	"github.com/adalundhe/cinesage/core/graph"
	"github.com/adalundhe/cinesage/core/model"
)

// ErrNonFiniteLoss reports a NaN or infinite batch loss. Training never
// fails on a finite-but-poor loss, but a non-finite one means the run
// is corrupt and must halt rather than keep optimizing garbage.
var ErrNonFiniteLoss = errors.New("non-finite training loss")

// Hyperparameters configure one training run. Zero values take the
// derived defaults below.
type Hyperparameters struct {
	// FeatureDim, when nonzero, asserts the expected graph feature
	// dimension. A mismatch (e.g. the catalog's genre vocabulary
	// changed between runs) aborts with checkpoint.ErrShapeMismatch.
	FeatureDim int

	HiddenDim     int     // default 32
	OutDim        int     // default 16
	Fanout        []int   // neighbors sampled per hop, default [10, 10]
	BatchSize     int     // labeled edges per minibatch, default 1024
	Epochs        int     // default 10
	LearningRate  float32 // default 0.01
	TrainFraction float64 // default 0.8
	Seed          int64   // default 42
}

func (hp Hyperparameters) withDefaults() Hyperparameters {
	if hp.HiddenDim == 0 {
		hp.HiddenDim = 32
	}
	if hp.OutDim == 0 {
		hp.OutDim = 16
	}
	if len(hp.Fanout) == 0 {
		hp.Fanout = []int{10, 10}
	}
	if hp.BatchSize == 0 {
		hp.BatchSize = 1024
	}
	if hp.Epochs == 0 {
		hp.Epochs = 10
	}
	if hp.LearningRate == 0 {
		hp.LearningRate = 0.01
	}
	if hp.TrainFraction == 0 {
		hp.TrainFraction = 0.8
	}
	if hp.Seed == 0 {
		hp.Seed = 42
	}
	return hp
}

// EpochStats is one epoch's aggregate metrics. Losses are weighted by
// batch size, so they average over edges, not batches.
type EpochStats struct {
	Epoch       int
	TrainLoss   float64
	ValLoss     float64
	ValAccuracy float64
}

// Train runs the full training loop and returns the final-epoch
// checkpoint plus per-epoch metrics. There is no early stopping and no
// best-epoch selection; only the last parameters are persisted, which
// matches how the model is consumed downstream.
//
// The train/validation split is a plain random edge partition. The same
// user or item can appear on both sides, so the validation signal is
// not fully independent; this is a known property of the split, kept
// deliberately.
//
// Cancellation is honored between minibatches: an in-flight batch runs
// to completion, then ctx.Err is returned.
func Train(ctx context.Context, g *graph.Graph, mapping *graph.IdentityMapping, hp Hyperparameters, logger *slog.Logger) (*checkpoint.Checkpoint, []EpochStats, error) {
	hp = hp.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	if hp.FeatureDim != 0 && hp.FeatureDim != g.FeatureDim {
		return nil, nil, fmt.Errorf("configured feature dim %d, graph has %d: %w",
			hp.FeatureDim, g.FeatureDim, checkpoint.ErrShapeMismatch)
	}
	if len(g.Interactions) == 0 {
		return nil, nil, fmt.Errorf("graph has no labeled edges")
	}

	rng := rand.New(rand.NewSource(hp.Seed))
	perm := rng.Perm(len(g.Interactions))
	trainCount := int(hp.TrainFraction * float64(len(perm)))
	if trainCount < 1 {
		trainCount = 1
	}
	trainIdx := perm[:trainCount]
	valIdx := perm[trainCount:]

	m := model.New(g.FeatureDim, hp.HiddenDim, hp.OutDim, hp.Seed)
	opt := model.NewAdam(m.Params(), hp.LearningRate)
	in := g.InNeighbors()

	runID := uuid.NewString()
	logger.Info("training started",
		"run_id", runID,
		"nodes", g.NumNodes(),
		"edges", len(g.Interactions),
		"train_edges", len(trainIdx),
		"val_edges", len(valIdx),
		"feature_dim", g.FeatureDim)

	stats := make([]EpochStats, 0, hp.Epochs)
	labels := make([]float32, 0, hp.BatchSize)

	for epoch := 1; epoch <= hp.Epochs; epoch++ {
		rng.Shuffle(len(trainIdx), func(i, j int) {
			trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i]
		})

		var trainLoss float64
		for start := 0; start < len(trainIdx); start += hp.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			batch := trainIdx[start:min(start+hp.BatchSize, len(trainIdx))]

			sub := sampleSubgraph(g, in, batch, hp.Fanout, rng)
			labels = gatherLabels(g, batch, labels[:0])

			tape, err := m.ForwardBatch(sub.x, sub.msgs, sub.pairs, labels)
			if err != nil {
				return nil, stats, fmt.Errorf("epoch %d forward: %w", epoch, err)
			}
			if !isFinite(tape.Loss) {
				return nil, stats, fmt.Errorf("epoch %d batch at edge %d: %w", epoch, start, ErrNonFiniteLoss)
			}

			m.ZeroGrad()
			m.BackwardBatch(tape)
			opt.Step(m.Params())

			trainLoss += tape.Loss * float64(len(batch))
		}
		trainLoss /= float64(len(trainIdx))

		valLoss, valAcc, err := evaluate(ctx, m, g, in, valIdx, hp, rng)
		if err != nil {
			return nil, stats, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}
		if !isFinite(trainLoss) || !isFinite(valLoss) {
			return nil, stats, fmt.Errorf("epoch %d: %w", epoch, ErrNonFiniteLoss)
		}

		stats = append(stats, EpochStats{
			Epoch:       epoch,
			TrainLoss:   trainLoss,
			ValLoss:     valLoss,
			ValAccuracy: valAcc,
		})
		logger.Info("epoch complete",
			"run_id", runID,
			"epoch", epoch,
			"train_loss", trainLoss,
			"val_loss", valLoss,
			"val_accuracy", valAcc)
	}

	ckpt := &checkpoint.Checkpoint{
		RunID:            runID,
		FeatureDim:       g.FeatureDim,
		HiddenDim:        hp.HiddenDim,
		OutDim:           hp.OutDim,
		ExtraUserColumns: g.ExtraUserColumns,
		Mapping:          mapping,
		Params:           m.StateDict(),
	}
	return ckpt, stats, nil
}

// evaluate scores the validation edges without touching gradients and
// returns size-weighted loss plus accuracy at a 0.5 threshold. An empty
// validation set yields zeros.
func evaluate(ctx context.Context, m *model.Model, g *graph.Graph, in [][]int32, valIdx []int, hp Hyperparameters, rng *rand.Rand) (float64, float64, error) {
	if len(valIdx) == 0 {
		return 0, 0, nil
	}

	var loss float64
	var correct int
	labels := make([]float32, 0, hp.BatchSize)

	for start := 0; start < len(valIdx); start += hp.BatchSize {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		batch := valIdx[start:min(start+hp.BatchSize, len(valIdx))]

		sub := sampleSubgraph(g, in, batch, hp.Fanout, rng)
		labels = gatherLabels(g, batch, labels[:0])

		tape, err := m.ForwardBatch(sub.x, sub.msgs, sub.pairs, labels)
		if err != nil {
			return 0, 0, err
		}
		loss += tape.Loss * float64(len(batch))
		for i, p := range tape.Probs {
			predicted := float32(0)
			if p > 0.5 {
				predicted = 1
			}
			if predicted == labels[i] {
				correct++
			}
		}
	}
	return loss / float64(len(valIdx)), float64(correct) / float64(len(valIdx)), nil
}

func gatherLabels(g *graph.Graph, batch []int, out []float32) []float32 {
	for _, ei := range batch {
		out = append(out, g.Labels[ei])
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
