package dataset

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedCatalog(t *testing.T, store *Store) []Movie {
	t.Helper()
	movies := []Movie{
		{ID: 1, Title: "Toy Story (1995)", Year: "1995", Genres: []string{"Animation", "Comedy"}},
		{ID: 2, Title: "Jumanji (1995)", Year: "1995", Genres: []string{"Adventure", "Fantasy"}},
		{ID: 3, Title: "Heat (1995)", Year: "1995", Genres: []string{"Action", "Crime"}},
		{ID: 4, Title: "Memento (2000)", Year: "2000", Genres: []string{"Mystery", "Thriller"}},
		{ID: 5, Title: "Spirited Away (2001)", Year: "2001", Genres: []string{"Animation", "Fantasy"}},
	}
	require.NoError(t, store.IngestMovies(movies))
	return movies
}

func TestIngestAndRoundTrip(t *testing.T) {
	store := openTestStore(t)
	movies := seedCatalog(t, store)

	ratings := []Rating{
		{UserID: 1, MovieID: 1, Rating: 4.0, Timestamp: 100},
		{UserID: 1, MovieID: 4, Rating: 2.5, Timestamp: 101},
		{UserID: 2, MovieID: 5, Rating: 5.0, Timestamp: 102},
	}
	require.NoError(t, store.IngestRatings(ratings))

	gotMovies, err := store.Movies()
	require.NoError(t, err)
	require.Len(t, gotMovies, len(movies))
	for i, m := range gotMovies {
		assert.Equal(t, movies[i].ID, m.ID)
		assert.Equal(t, movies[i].Title, m.Title)
		assert.Equal(t, movies[i].Genres, m.Genres)
	}

	gotRatings, err := store.Ratings()
	require.NoError(t, err)
	assert.Equal(t, ratings, gotRatings)
}

func TestIngestReplacesPreviousRows(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	require.NoError(t, store.IngestMovies([]Movie{
		{ID: 9, Title: "Alien (1979)", Year: "1979", Genres: []string{"Horror", "Sci-Fi"}},
	}))

	movies, err := store.Movies()
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, int64(9), movies[0].ID)
}

func TestGet(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	m, err := store.Get(4)
	require.NoError(t, err)
	assert.Equal(t, "Memento (2000)", m.Title)
	assert.Equal(t, "2000", m.Year)

	_, err = store.Get(404)
	assert.ErrorIs(t, err, ErrMovieNotFound)
}

func TestListPagination(t *testing.T) {
	store := openTestStore(t)
	movies := seedCatalog(t, store)

	page, total, err := store.List(0, 2, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(movies), total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(1), page[0].ID)
	assert.Equal(t, int64(2), page[1].ID)

	page, total, err = store.List(4, 2, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(movies), total)
	require.Len(t, page, 1)
	assert.Equal(t, int64(5), page[0].ID)
}

func TestListYearFilter(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	page, total, err := store.List(0, 10, ListFilter{Year: "1995"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 3)
	for _, m := range page {
		assert.Equal(t, "1995", m.Year)
	}
}

func TestListTitleSearch(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	page, total, err := store.List(0, 10, ListFilter{Search: "spirited"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, int64(5), page[0].ID)
}

func TestListGenreFilterMatchesWholeTokens(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	page, total, err := store.List(0, 10, ListFilter{Genre: "Fantasy"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)

	// A prefix of a genre name must not match the whole token.
	_, total, err = store.List(0, 10, ListFilter{Genre: "Anim"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListCombinedFilters(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	page, total, err := store.List(0, 10, ListFilter{Year: "1995", Genre: "Animation"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Toy Story (1995)", page[0].Title)
}

func TestPosters(t *testing.T) {
	store := openTestStore(t)
	seedCatalog(t, store)

	_, err := store.Poster(1)
	assert.ErrorIs(t, err, ErrMovieNotFound)

	blob := []byte{0x89, 'P', 'N', 'G'}
	require.NoError(t, store.SetPoster(1, blob))

	got, err := store.Poster(1)
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	assert.ErrorIs(t, store.SetPoster(404, blob), ErrMovieNotFound)
}
