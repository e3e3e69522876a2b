// Package dataset holds the tabular inputs of the recommender: the movie
// catalog and the rating-event table. It provides MovieLens-format CSV
// loaders and a sqlite-backed store that the serving layer queries for
// catalog browsing. The embedding core only ever sees the plain slices
// returned here, never database handles.
package dataset

// Movie is one catalog row. Genres carries the split genre tokens in
// catalog order.
type Movie struct {
	ID     int64
	Title  string
	Year   string
	Genres []string
	ImdbID string
	TmdbID int64
}

// Rating is one interaction event between a user and a movie.
type Rating struct {
	UserID    int64
	MovieID   int64
	Rating    float32
	Timestamp int64
}
