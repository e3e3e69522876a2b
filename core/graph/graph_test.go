package graph

import (
	"errors"
	"testing"

	"github.com/adalundhe/cinesage/core/dataset"
)

func testMovies() []dataset.Movie {
	return []dataset.Movie{
		{ID: 100, Title: "Heat (1995)", Year: "1995", Genres: []string{"Action", "Crime"}},
		{ID: 200, Title: "Toy Story (1995)", Year: "1995", Genres: []string{"Animation", "Comedy"}},
	}
}

func testRatings() []dataset.Rating {
	return []dataset.Rating{
		{UserID: 10, MovieID: 100, Rating: 4.0},
		{UserID: 20, MovieID: 100, Rating: 2.9},
		{UserID: 30, MovieID: 200, Rating: 3.0},
	}
}

func TestBuildNodeLayout(t *testing.T) {
	g, mapping, err := Build(testMovies(), testRatings(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if g.NumUsers != 3 || g.NumItems != 2 {
		t.Fatalf("got %d users, %d items, want 3 and 2", g.NumUsers, g.NumItems)
	}
	if g.NumNodes() != 5 {
		t.Fatalf("got %d nodes, want 5", g.NumNodes())
	}

	// Users take indices 0..2 in first-seen order, items follow in
	// catalog order.
	for i, userID := range []int64{10, 20, 30} {
		node, ok := mapping.UserNode(userID)
		if !ok || node != int32(i) {
			t.Errorf("user %d at node %d, want %d", userID, node, i)
		}
	}
	for i, movieID := range []int64{100, 200} {
		node, ok := mapping.ItemNode(movieID)
		if !ok || node != int32(3+i) {
			t.Errorf("movie %d at node %d, want %d", movieID, node, 3+i)
		}
	}
	if len(mapping.ItemOrder) != 2 || mapping.ItemOrder[0] != 100 || mapping.ItemOrder[1] != 200 {
		t.Errorf("item order %v, want [100 200]", mapping.ItemOrder)
	}
}

func TestLabelThresholdInclusive(t *testing.T) {
	ratings := []dataset.Rating{
		{UserID: 1, MovieID: 100, Rating: 3.0},
		{UserID: 2, MovieID: 100, Rating: 2.9},
		{UserID: 3, MovieID: 100, Rating: 5.0},
	}
	g, _, err := Build(testMovies(), ratings, Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []float32{1, 0, 1}
	for i, label := range g.Labels {
		if label != want[i] {
			t.Errorf("edge %d label %v, want %v", i, label, want[i])
		}
	}
}

func TestBuildUnknownItem(t *testing.T) {
	ratings := []dataset.Rating{
		{UserID: 1, MovieID: 100, Rating: 4.0},
		{UserID: 1, MovieID: 999, Rating: 4.0},
	}
	_, _, err := Build(testMovies(), ratings, Config{})
	if !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("got %v, want ErrUnknownItem", err)
	}
}

func TestFeatureMatrix(t *testing.T) {
	g, mapping, err := Build(testMovies(), testRatings(), Config{ExtraUserColumns: 4})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// 4 distinct genres in first-seen order plus 4 reserved columns.
	if g.FeatureDim != 8 {
		t.Fatalf("feature dim %d, want 8", g.FeatureDim)
	}

	heatNode, _ := mapping.ItemNode(100)
	heat := g.Feature(int(heatNode))
	want := []float32{1, 1, 0, 0, 0, 0, 0, 0} // Action, Crime
	for i, v := range want {
		if heat[i] != v {
			t.Errorf("heat feature[%d] = %v, want %v", i, heat[i], v)
		}
	}

	// User rows carry no side information.
	for _, v := range g.Feature(0) {
		if v != 0 {
			t.Fatalf("user feature row not zero: %v", g.Feature(0))
		}
	}
}

func TestReverseMessages(t *testing.T) {
	g, _, err := Build(testMovies(), testRatings(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Messages) != 2*len(g.Interactions) {
		t.Fatalf("got %d messages for %d interactions", len(g.Messages), len(g.Interactions))
	}
	for i, e := range g.Interactions {
		rev := g.Messages[len(g.Interactions)+i]
		if rev.Src != e.Dst || rev.Dst != e.Src {
			t.Errorf("message %d = %+v, want reverse of %+v", i, rev, e)
		}
	}
}

func TestInNeighbors(t *testing.T) {
	g, mapping, err := Build(testMovies(), testRatings(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	in := g.InNeighbors()

	heatNode, _ := mapping.ItemNode(100)
	if len(in[heatNode]) != 2 {
		t.Errorf("movie 100 has %d in-neighbors, want 2", len(in[heatNode]))
	}
	userNode, _ := mapping.UserNode(10)
	if len(in[userNode]) != 1 || in[userNode][0] != heatNode {
		t.Errorf("user 10 in-neighbors %v, want [%d]", in[userNode], heatNode)
	}
}

func TestMappingEqual(t *testing.T) {
	_, a, err := Build(testMovies(), testRatings(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, b, err := Build(testMovies(), testRatings(), Config{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("mappings from identical tables must be equal")
	}

	b.Items[100] = 99
	if a.Equal(b) {
		t.Fatal("mappings with different node assignments must differ")
	}
}
