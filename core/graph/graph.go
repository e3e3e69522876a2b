// Package graph builds the bipartite user/movie interaction graph the
// embedding model trains on. Users and movies share one dense node index
// space (users first), one feature matrix, and a threshold-labeled edge
// per rating event.
package graph

import (
	"errors"
	"fmt"

	"github.com/adalundhe/cinesage/core/dataset"
)

// ErrUnknownItem is returned when a rating references a movie id that is
// absent from the catalog. Dropping such rows silently would skew the
// edge-label statistics, so the build aborts instead.
var ErrUnknownItem = errors.New("rating references unknown item")

// LabelThreshold is the rating cutoff for a positive interaction. The
// threshold is inclusive: rating >= 3.0 labels the edge 1.
const LabelThreshold float32 = 3.0

// DefaultExtraUserColumns is the number of feature columns reserved for
// user-side signal beyond the genre vocabulary. User rows currently
// carry no side information, so these columns stay zero; they exist so a
// checkpoint's feature dimension has room for user features without a
// vocabulary change.
const DefaultExtraUserColumns = 8

// Config controls graph construction.
type Config struct {
	// ExtraUserColumns reserves feature columns for user-side signal.
	// Zero means DefaultExtraUserColumns.
	ExtraUserColumns int
}

func (c Config) extraUserColumns() int {
	if c.ExtraUserColumns <= 0 {
		return DefaultExtraUserColumns
	}
	return c.ExtraUserColumns
}

// Edge is a directed src -> dst message between two node indices.
type Edge struct {
	Src int32
	Dst int32
}

// Graph is the immutable training/serving graph. Node indices are dense:
// users occupy [0, NumUsers), movies occupy [NumUsers, NumUsers+NumItems).
type Graph struct {
	NumUsers   int
	NumItems   int
	FeatureDim int

	// ExtraUserColumns is the reserved user-column count the graph was
	// built with; checkpoints carry it so inference rebuilds an
	// identically shaped feature matrix.
	ExtraUserColumns int

	// Features is the flat row-major N x FeatureDim node feature matrix.
	// Movie rows are multi-hot over the genre vocabulary in the leading
	// columns; user rows occupy the trailing reserved columns (all zero).
	Features []float32

	// Interactions holds one directed user -> movie edge per rating row,
	// in rating order. Labels is parallel to it.
	Interactions []Edge
	Labels       []float32

	// Messages is the edge list the model aggregates over: Interactions
	// plus a materialized reverse edge per interaction, so movie nodes
	// receive user signal and vice versa.
	Messages []Edge
}

// NumNodes returns the total node count.
func (g *Graph) NumNodes() int {
	return g.NumUsers + g.NumItems
}

// Feature returns the feature row of node i.
func (g *Graph) Feature(i int) []float32 {
	return g.Features[i*g.FeatureDim : (i+1)*g.FeatureDim]
}

// Build constructs the bipartite graph and identity mapping from the
// catalog and rating tables. Users are indexed in first-seen rating
// order, movies in catalog order after all users. Every rating must
// reference a catalog movie or the build fails with ErrUnknownItem.
func Build(movies []dataset.Movie, ratings []dataset.Rating, cfg Config) (*Graph, *IdentityMapping, error) {
	mapping := &IdentityMapping{
		Users: make(map[int64]int32),
		Items: make(map[int64]int32, len(movies)),
	}

	for _, r := range ratings {
		if _, ok := mapping.Users[r.UserID]; !ok {
			mapping.Users[r.UserID] = int32(len(mapping.Users))
			mapping.UserOrder = append(mapping.UserOrder, r.UserID)
		}
	}
	numUsers := len(mapping.Users)

	// Genre vocabulary in first-seen catalog order.
	genreCols := make(map[string]int)
	for _, m := range movies {
		for _, genre := range m.Genres {
			if _, ok := genreCols[genre]; !ok {
				genreCols[genre] = len(genreCols)
			}
		}
	}

	featureDim := len(genreCols) + cfg.extraUserColumns()

	g := &Graph{
		NumUsers:         numUsers,
		NumItems:         len(movies),
		FeatureDim:       featureDim,
		ExtraUserColumns: cfg.extraUserColumns(),
	}
	g.Features = make([]float32, g.NumNodes()*featureDim)

	for i, m := range movies {
		if _, ok := mapping.Items[m.ID]; ok {
			return nil, nil, fmt.Errorf("duplicate movie id %d in catalog", m.ID)
		}
		node := int32(numUsers + i)
		mapping.Items[m.ID] = node
		mapping.ItemOrder = append(mapping.ItemOrder, m.ID)
		row := g.Feature(int(node))
		for _, genre := range m.Genres {
			row[genreCols[genre]] = 1.0
		}
	}

	g.Interactions = make([]Edge, 0, len(ratings))
	g.Labels = make([]float32, 0, len(ratings))
	for _, r := range ratings {
		itemNode, ok := mapping.Items[r.MovieID]
		if !ok {
			return nil, nil, fmt.Errorf("rating by user %d names movie %d: %w", r.UserID, r.MovieID, ErrUnknownItem)
		}
		userNode := mapping.Users[r.UserID]
		g.Interactions = append(g.Interactions, Edge{Src: userNode, Dst: itemNode})
		label := float32(0)
		if r.Rating >= LabelThreshold {
			label = 1
		}
		g.Labels = append(g.Labels, label)
	}

	g.Messages = make([]Edge, 0, 2*len(g.Interactions))
	g.Messages = append(g.Messages, g.Interactions...)
	for _, e := range g.Interactions {
		g.Messages = append(g.Messages, Edge{Src: e.Dst, Dst: e.Src})
	}

	return g, mapping, nil
}

// InNeighbors returns, for every node, the sources of its incoming
// message edges. Built on demand by samplers and the inference engine.
func (g *Graph) InNeighbors() [][]int32 {
	in := make([][]int32, g.NumNodes())
	for _, e := range g.Messages {
		in[e.Dst] = append(in[e.Dst], e.Src)
	}
	return in
}
