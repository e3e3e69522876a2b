// Package inference serves ranking queries from a trained checkpoint.
// The engine rebuilds the training graph from the same raw tables,
// verifies the identity-mapping contract, precomputes every node
// embedding once, and answers recommend queries with read-only lookups.
// A reload builds a complete replacement state before swapping one
// pointer, so concurrent queries never observe partial caches.
package inference

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/adalundhe/cinesage/core/checkpoint"
	"github.com/adalundhe/cinesage/core/dataset"
	"github.com/adalundhe/cinesage/core/graph"
	"github.com/adalundhe/cinesage/core/model"
)

// ErrUnknownUser is returned when a recommendation request names a user
// id absent from the identity mapping. The caller gets the error;
// defaulting to an arbitrary user would silently serve someone else's
// taste.
var ErrUnknownUser = errors.New("unknown user")

const defaultResultCacheSize = 1024

// Recommendation is one ranked catalog item.
type Recommendation struct {
	MovieID int64
	Score   float32
}

// engineState is everything derived from one checkpoint. It is
// immutable after construction and replaced wholesale on reload.
type engineState struct {
	ckpt    *checkpoint.Checkpoint
	graph   *graph.Graph
	mapping *graph.IdentityMapping
	model   *model.Model
	emb     model.Matrix // N x OutDim embedding cache
}

// Engine holds the process-wide serving state.
type Engine struct {
	state   atomic.Pointer[engineState]
	results *lru.Cache[string, []Recommendation]
	logger  *slog.Logger

	// ckptPath is read by the watcher goroutine while Reload may
	// rewrite it, so access goes through the atomic pointer.
	ckptPath atomic.Pointer[string]
	movies   []dataset.Movie
	ratings  []dataset.Rating
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New loads the checkpoint at ckptPath and prepares the engine against
// the given catalog and rating tables. The tables must be the same ones
// the checkpoint was trained from; the rebuilt identity mapping is
// compared against the checkpoint's and any difference is fatal.
func New(ckptPath string, movies []dataset.Movie, ratings []dataset.Rating, opts ...Option) (*Engine, error) {
	results, err := lru.New[string, []Recommendation](defaultResultCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		results: results,
		logger:  slog.Default(),
		movies:  movies,
		ratings: ratings,
	}
	e.ckptPath.Store(&ckptPath)
	for _, opt := range opts {
		opt(e)
	}

	st, err := e.buildState(ckptPath)
	if err != nil {
		return nil, err
	}
	e.state.Store(st)
	e.logger.Info("inference engine ready",
		"run_id", st.ckpt.RunID,
		"users", st.graph.NumUsers,
		"items", st.graph.NumItems,
		"out_dim", st.ckpt.OutDim)
	return e, nil
}

func (e *Engine) buildState(ckptPath string) (*engineState, error) {
	ckpt, err := checkpoint.Load(ckptPath)
	if err != nil {
		return nil, err
	}

	g, mapping, err := graph.Build(e.movies, e.ratings, graph.Config{ExtraUserColumns: ckpt.ExtraUserColumns})
	if err != nil {
		return nil, fmt.Errorf("rebuild graph: %w", err)
	}
	if ckpt.FeatureDim != g.FeatureDim {
		return nil, fmt.Errorf("checkpoint feature dim %d, graph has %d: %w",
			ckpt.FeatureDim, g.FeatureDim, checkpoint.ErrShapeMismatch)
	}
	if !mapping.Equal(ckpt.Mapping) {
		return nil, checkpoint.ErrMappingMismatch
	}

	m := model.New(ckpt.FeatureDim, ckpt.HiddenDim, ckpt.OutDim, 0)
	if err := m.LoadState(ckpt.Params); err != nil {
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrShapeMismatch, err)
	}

	// The full forward pass over the graph, computed exactly once per
	// state. Queries only read from it.
	x := model.Matrix{Rows: g.NumNodes(), Cols: g.FeatureDim, Data: g.Features}
	emb := m.Embed(x, g.Messages)

	return &engineState{ckpt: ckpt, graph: g, mapping: mapping, model: m, emb: emb}, nil
}

// Recommend scores every catalog movie outside known for the given user
// and returns the topK best, sorted by score descending with ties broken
// by catalog order. Movie ids in known that are not in the catalog are
// ignored; they only affect the exclusion filter.
func (e *Engine) Recommend(userID int64, known map[int64]struct{}, topK int) ([]Recommendation, error) {
	if topK <= 0 {
		return nil, nil
	}
	st := e.state.Load()

	userNode, ok := st.mapping.UserNode(userID)
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrUnknownUser)
	}

	key := resultKey(st.ckpt.RunID, userID, known, topK)
	if cached, ok := e.results.Get(key); ok {
		return append([]Recommendation(nil), cached...), nil
	}

	recs := st.rank(userNode, known, topK)
	e.results.Add(key, recs)
	// Callers get a copy so mutating a result cannot poison the cache.
	return append([]Recommendation(nil), recs...), nil
}

// rank is the O(catalog) scoring scan against the embedding cache.
func (st *engineState) rank(userNode int32, known map[int64]struct{}, topK int) []Recommendation {
	userEmb := st.emb.Row(int(userNode))

	recs := make([]Recommendation, 0, len(st.mapping.ItemOrder))
	for _, movieID := range st.mapping.ItemOrder {
		if _, skip := known[movieID]; skip {
			continue
		}
		itemNode := st.mapping.Items[movieID]
		recs = append(recs, Recommendation{
			MovieID: movieID,
			Score:   st.model.Score(userEmb, st.emb.Row(int(itemNode))),
		})
	}

	// Stable sort keeps catalog enumeration order for equal scores, so
	// rankings are deterministic.
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > topK {
		recs = recs[:topK]
	}
	return recs
}

// RecommendAll precomputes topK recommendations for every known user
// against the full embedding cache. This is the batch path for serving
// under high query volume, where per-request O(catalog) scans do not
// hold up. All user x item dot products come from one matrix product;
// the embedding cache is laid out users first, so both operands are
// contiguous views into it.
func (e *Engine) RecommendAll(topK int) map[int64][]Recommendation {
	if topK <= 0 {
		return nil
	}
	st := e.state.Load()
	g := st.graph
	dim := st.emb.Cols

	users := blas32.General{Rows: g.NumUsers, Cols: dim, Stride: dim, Data: st.emb.Data[:g.NumUsers*dim]}
	items := blas32.General{Rows: g.NumItems, Cols: dim, Stride: dim, Data: st.emb.Data[g.NumUsers*dim:]}
	dots := blas32.General{Rows: g.NumUsers, Cols: g.NumItems, Stride: g.NumItems, Data: make([]float32, g.NumUsers*g.NumItems)}
	blas32.Gemm(blas.NoTrans, blas.Trans, 1, users, items, 0, dots)

	out := make(map[int64][]Recommendation, len(st.mapping.UserOrder))
	for u, userID := range st.mapping.UserOrder {
		row := dots.Data[u*g.NumItems : (u+1)*g.NumItems]
		recs := make([]Recommendation, len(row))
		for k, dot := range row {
			// Item node k sits at catalog position k, so ItemOrder
			// indexes the dots row directly.
			recs[k] = Recommendation{
				MovieID: st.mapping.ItemOrder[k],
				Score:   st.model.ScoreDot(dot),
			}
		}
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
		if len(recs) > topK {
			recs = recs[:topK]
		}
		out[userID] = recs
	}
	return out
}

// Reload builds a fresh state from the checkpoint at ckptPath (commonly
// the same path after a new training run) and swaps it in atomically.
// In-flight queries finish against the old state; the result cache is
// keyed by run id, so stale entries simply stop being hit and age out.
func (e *Engine) Reload(ckptPath string) error {
	st, err := e.buildState(ckptPath)
	if err != nil {
		return err
	}
	e.ckptPath.Store(&ckptPath)
	e.state.Store(st)
	e.logger.Info("checkpoint reloaded", "run_id", st.ckpt.RunID, "path", ckptPath)
	return nil
}

// RunID returns the identifier of the currently served checkpoint.
func (e *Engine) RunID() string {
	return e.state.Load().ckpt.RunID
}

func resultKey(runID string, userID int64, known map[int64]struct{}, topK int) string {
	ids := make([]int64, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	b.WriteString(runID)
	b.WriteByte('/')
	b.WriteString(strconv.FormatInt(userID, 10))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(topK))
	for _, id := range ids {
		b.WriteByte(',')
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
